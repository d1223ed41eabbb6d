package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsync/internal/extract"
	"mailsync/internal/mailbox"
	"mailsync/internal/model"
)

type testEnv struct {
	orchestrator  *Orchestrator
	leads         *fakeLeads
	conversations *fakeConversations
	messages      *fakeMessages
	registry      *fakeRegistry
	tasks         *fakeTasks
	team          *fakeTeam
	mailbox       *fakeMailbox
	events        *fakeEvents
}

func newTestEnv(mb *fakeMailbox) *testEnv {
	env := &testEnv{
		leads:         newFakeLeads(),
		conversations: &fakeConversations{},
		messages:      newFakeMessages(),
		registry:      newFakeRegistry(),
		tasks:         newFakeTasks(),
		team:          newFakeTeam(),
		mailbox:       mb,
		events:        &fakeEvents{},
	}

	log := zap.NewNop()
	cfg := Config{
		AccountEmail:         "sam@internal.io",
		InternalDomains:      []string{"internal.io"},
		DefaultLimit:         10,
		DefaultSince:         24 * time.Hour,
		MinContentLength:     10,
		ConversationLookback: 30 * 24 * time.Hour,
		ThreadLookback:       30 * 24 * time.Hour,
		ThreadFetchLimit:     50,
		BatchBudget:          5 * time.Minute,
	}

	detector := NewDuplicateDetector(env.messages, DefaultDedupConfig(), log)
	threads := NewThreadResolver(mb, cfg.ThreadLookback, cfg.ThreadFetchLimit, log)

	env.orchestrator = NewOrchestrator(
		env.leads, env.conversations, env.messages, env.registry,
		env.tasks, env.team, mb, extract.NewExtractor(),
		detector, threads, nil, env.events, cfg, log,
	)
	return env
}

func plainBody(text string) model.EmailBody {
	return model.EmailBody{Kind: model.BodyPlainText, Text: text}
}

func sentEmail(messageID, subject, to string, date time.Time, body string) model.RawEmail {
	return model.RawEmail{
		MessageID: messageID,
		Subject:   subject,
		From:      "sam@internal.io",
		FromName:  "Sam Seller",
		To:        to,
		Date:      date,
		Body:      plainBody(body),
	}
}

func TestSyncBatchCreatesEntities(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Pricing proposal", "jane.doe@acme.com", date, "Hi Jane, attached is the proposal we discussed."),
	}}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.EmailCount)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 1, summary.NewEmailsCount)
	assert.Equal(t, 1, summary.NewLeadsCount)
	assert.Equal(t, 1, summary.StatusUpdatedCount)
	assert.Equal(t, 1, summary.TasksCreatedCount)
	assert.Equal(t, 0, summary.SkippedInternalCount)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, model.OutcomeProcessed, summary.Results[0].Status)

	lead, err := env.leads.FindByEmail(context.Background(), "site-1", "jane.doe@acme.com")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, model.LeadStatusContacted, lead.Status)
	assert.Equal(t, "Jane Doe", lead.Name) // synthesized from the address

	require.Len(t, env.conversations.items, 1)
	assert.Equal(t, "Pricing proposal", env.conversations.items[0].Title)

	msgs, err := env.messages.ListByConversation(context.Background(), env.conversations.items[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageRoleTeamMember, msgs[0].Role)
	assert.Equal(t, "<m1@mail>", msgs[0].Metadata["email_id"])
	assert.Equal(t, model.DedupVersion, msgs[0].Metadata["dedup_version"])

	assert.Contains(t, env.events.routingKeys, "lead.created")
	assert.Contains(t, env.events.routingKeys, "message.created")
	assert.Contains(t, env.events.routingKeys, "sync.completed")
}

func TestSyncBatchAssignsTeamMember(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Intro", "jane.doe@acme.com", date, "Hello from our side, nice meeting you."),
	}}
	env := newTestEnv(mb)
	member := &model.TeamMember{ID: uuid.New(), SiteID: "site-1", Email: "sam@internal.io", Name: "Sam Seller"}
	env.team.byKey["site-1|sam@internal.io"] = member

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.AssignedToTeamMemberCount)

	lead, err := env.leads.FindByEmail(context.Background(), "site-1", "jane.doe@acme.com")
	require.NoError(t, err)
	require.NotNil(t, lead.AssignedTo)
	assert.Equal(t, member.ID, *lead.AssignedTo)
}

func TestSyncBatchDetectsResendDuplicate(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	body := "Hi Jane, attached is the proposal we discussed yesterday."
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Pricing proposal", "jane.doe@acme.com", date, body),
		sentEmail("<m2@mail>", "Pricing proposal", "jane.doe@acme.com", date.Add(2*time.Second), body),
	}}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.EmailCount)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.NewEmailsCount)
	assert.Equal(t, 1, summary.NewLeadsCount)
	assert.Equal(t, 1, env.messages.total())

	require.Len(t, summary.Results, 2)
	assert.Equal(t, model.OutcomeProcessed, summary.Results[0].Status)
	assert.Equal(t, model.OutcomeDuplicate, summary.Results[1].Status)
	assert.Equal(t, ReasonExactMatch, summary.Results[1].Reason)
	// the duplicate points at the message the first email created
	assert.Equal(t, summary.Results[0].MessageID, summary.Results[1].MessageID)
}

func TestSyncBatchSkipsInternalDomain(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Standup notes", "colleague@internal.io", date, "Notes from this morning's standup."),
	}}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.SkippedInternalCount)
	assert.Equal(t, 0, summary.ProcessedCount)
	assert.Equal(t, 0, summary.NewLeadsCount)
	assert.Empty(t, env.leads.byKey)
	assert.Empty(t, env.conversations.items)
	assert.Zero(t, env.messages.total())

	entry, err := env.registry.Find(context.Background(), "site-1", "<m1@mail>")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.SyncStatusSkipped, entry.Status)
}

func TestSyncBatchSkipsInvalidRecipient(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Announcement", "undisclosed-recipients", date, "A broadcast with no usable recipient."),
	}}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, model.OutcomeSkipped, summary.Results[0].Status)
	assert.Equal(t, "invalid_recipient", summary.Results[0].Reason)
	assert.Empty(t, env.leads.byKey)
}

func TestSyncBatchContentFloor(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Ping", "jane.doe@acme.com", date, "ok thanks"),
	}}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 1, summary.NewLeadsCount)
	assert.Equal(t, 0, summary.NewEmailsCount)
	assert.Equal(t, 1, summary.MessagesNotCreatedCount)
	assert.Zero(t, env.messages.total())
	// lead and conversation still exist
	require.Len(t, env.conversations.items, 1)
}

func TestSyncBatchIdempotentSecondRun(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Pricing proposal", "jane.doe@acme.com", date, "Hi Jane, attached is the proposal we discussed."),
		sentEmail("<m2@mail>", "Kickoff agenda", "joe.smith@beta.org", date.Add(time.Hour), "Agenda for the kickoff call on Thursday."),
	}}
	env := newTestEnv(mb)

	first := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})
	require.True(t, first.Success)
	require.Equal(t, 2, first.ProcessedCount)

	second := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})
	require.True(t, second.Success)
	assert.Equal(t, first.ProcessedCount, second.AlreadyProcessedCount)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 0, second.NewEmailsCount)
	assert.Equal(t, 0, second.NewLeadsCount)
	assert.Equal(t, 2, env.messages.total())
}

func TestSyncBatchMailboxFailure(t *testing.T) {
	mb := &fakeMailbox{sentErr: fmt.Errorf("imap host missing: %w", mailbox.ErrConfiguration)}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	assert.False(t, summary.Success)
	assert.Equal(t, ErrorCodeMailbox, summary.ErrorCode)
	assert.NotEmpty(t, summary.Error)
	assert.Empty(t, summary.Results)
}

func TestSyncBatchExpandsThread(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{
		sent: []model.RawEmail{
			sentEmail("<m1@mail>", "Re: Launch plan", "jdoe@acme.com", date, "Hi Jane, please find the launch plan attached for review."),
		},
		inbox: []model.RawEmail{
			{
				MessageID: "<r1@mail>",
				Subject:   "Launch plan",
				From:      "jdoe@acme.com",
				FromName:  "Jane Doe",
				To:        "sam@internal.io",
				Date:      date.Add(-2 * time.Hour),
				Body:      plainBody("Thanks, our team reviewed everything and had two open points."),
			},
			{
				MessageID: "<x1@mail>",
				Subject:   "Unrelated newsletter",
				From:      "jdoe@acme.com",
				To:        "sam@internal.io",
				Date:      date.Add(-time.Hour),
				Body:      plainBody("Completely unrelated content that must not be pulled in."),
			},
		},
	}
	env := newTestEnv(mb)

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.EmailCount)
	assert.Equal(t, 1, summary.ThreadsDetectedCount)
	assert.Equal(t, 1, summary.ThreadEmailsSyncedCount)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 2, summary.NewEmailsCount)
	assert.Equal(t, 1, summary.NewLeadsCount)
	// inbound mail carried the lead's real display name
	assert.Equal(t, 1, summary.NamesUpdatedCount)

	lead, err := env.leads.FindByEmail(context.Background(), "site-1", "jdoe@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", lead.Name)

	// both sides landed in the one conversation with the right roles
	require.Len(t, env.conversations.items, 1)
	msgs, err := env.messages.ListByConversation(context.Background(), env.conversations.items[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	roles := map[model.MessageRole]int{}
	for _, m := range msgs {
		roles[m.Role]++
	}
	assert.Equal(t, 1, roles[model.MessageRoleTeamMember])
	assert.Equal(t, 1, roles[model.MessageRoleLead])
}

func TestSyncBatchCompletesProspectingTask(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Intro", "jane.doe@acme.com", date, "Hello Jane, reaching out to introduce ourselves."),
	}}
	env := newTestEnv(mb)

	// the lead already exists with a pending prospecting task
	lead := &model.Lead{ID: uuid.New(), SiteID: "site-1", Email: "jane.doe@acme.com", Status: model.LeadStatusNew}
	require.NoError(t, env.leads.Create(context.Background(), lead))
	task := &model.Task{
		ID: uuid.New(), LeadID: lead.ID, SiteID: "site-1",
		Kind: model.TaskKindProspecting, Stage: model.TaskStageProspecting,
		Status: model.TaskStatusPending,
	}
	require.NoError(t, env.tasks.Create(context.Background(), task))

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 0, summary.NewLeadsCount)
	assert.Equal(t, 0, summary.TasksCreatedCount)

	tasks, err := env.tasks.ListByLead(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskStatusCompleted, tasks[0].Status)
}

func TestSyncBatchSkipsTaskWhenJourneyAdvanced(t *testing.T) {
	date := time.Now().Add(-2 * time.Hour)
	mb := &fakeMailbox{sent: []model.RawEmail{
		sentEmail("<m1@mail>", "Check-in", "jane.doe@acme.com", date, "Hi Jane, just checking in on the contract."),
	}}
	env := newTestEnv(mb)

	lead := &model.Lead{ID: uuid.New(), SiteID: "site-1", Email: "jane.doe@acme.com", Status: model.LeadStatusQualified}
	require.NoError(t, env.leads.Create(context.Background(), lead))
	task := &model.Task{
		ID: uuid.New(), LeadID: lead.ID, SiteID: "site-1",
		Kind: model.TaskKindFollowUp, Stage: model.TaskStageDecision,
		Status: model.TaskStatusPending,
	}
	require.NoError(t, env.tasks.Create(context.Background(), task))

	summary := env.orchestrator.SyncBatch(context.Background(), model.SyncRequest{SiteID: "site-1"})

	require.True(t, summary.Success)
	assert.Equal(t, 0, summary.TasksCreatedCount)
	// qualified never falls back to contacted
	assert.Equal(t, 0, summary.StatusUpdatedCount)

	refetched, err := env.leads.FindByEmail(context.Background(), "site-1", "jane.doe@acme.com")
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusQualified, refetched.Status)
}
