package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mailsync/internal/model"
)

// In-memory store fakes. Behavior mirrors the pgx repositories: Find
// methods return (nil, nil) on absence.

type fakeLeads struct {
	byKey map[string]*model.Lead
}

func newFakeLeads() *fakeLeads {
	return &fakeLeads{byKey: map[string]*model.Lead{}}
}

func leadKey(siteID, email string) string { return siteID + "|" + email }

func (f *fakeLeads) FindByEmail(_ context.Context, siteID, email string) (*model.Lead, error) {
	if l, ok := f.byKey[leadKey(siteID, email)]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeLeads) Create(_ context.Context, l *model.Lead) error {
	copied := *l
	f.byKey[leadKey(l.SiteID, l.Email)] = &copied
	return nil
}

func (f *fakeLeads) get(id uuid.UUID) *model.Lead {
	for _, l := range f.byKey {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (f *fakeLeads) UpdateName(_ context.Context, id uuid.UUID, name string) error {
	if l := f.get(id); l != nil {
		l.Name = name
		return nil
	}
	return fmt.Errorf("lead %s not found", id)
}

func (f *fakeLeads) UpdateStatus(_ context.Context, id uuid.UUID, status model.LeadStatus) error {
	if l := f.get(id); l != nil {
		l.Status = status
		return nil
	}
	return fmt.Errorf("lead %s not found", id)
}

func (f *fakeLeads) Assign(_ context.Context, id, memberID uuid.UUID) error {
	if l := f.get(id); l != nil {
		l.AssignedTo = &memberID
		return nil
	}
	return fmt.Errorf("lead %s not found", id)
}

type fakeConversations struct {
	items []*model.Conversation
}

func (f *fakeConversations) FindActive(_ context.Context, leadID uuid.UUID, channel string, activeSince time.Time) (*model.Conversation, error) {
	var best *model.Conversation
	for _, c := range f.items {
		if c.LeadID != leadID || c.Channel != channel || c.LastMessageAt.Before(activeSince) {
			continue
		}
		if best == nil || c.LastMessageAt.After(best.LastMessageAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (f *fakeConversations) Create(_ context.Context, c *model.Conversation) error {
	copied := *c
	f.items = append(f.items, &copied)
	return nil
}

func (f *fakeConversations) get(id uuid.UUID) *model.Conversation {
	for _, c := range f.items {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeConversations) SetTitle(_ context.Context, id uuid.UUID, title string) error {
	if c := f.get(id); c != nil {
		c.Title = title
		return nil
	}
	return fmt.Errorf("conversation %s not found", id)
}

func (f *fakeConversations) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	if c := f.get(id); c != nil {
		if at.After(c.LastMessageAt) {
			c.LastMessageAt = at
		}
		return nil
	}
	return fmt.Errorf("conversation %s not found", id)
}

type fakeMessages struct {
	byConv  map[uuid.UUID][]model.Message
	listErr error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byConv: map[uuid.UUID][]model.Message{}}
}

func (f *fakeMessages) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Message(nil), f.byConv[conversationID]...), nil
}

func (f *fakeMessages) Create(_ context.Context, m *model.Message) error {
	f.byConv[m.ConversationID] = append(f.byConv[m.ConversationID], *m)
	return nil
}

func (f *fakeMessages) total() int {
	n := 0
	for _, msgs := range f.byConv {
		n += len(msgs)
	}
	return n
}

type fakeRegistry struct {
	byKey map[string]*model.SyncRegistryEntry
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byKey: map[string]*model.SyncRegistryEntry{}}
}

func (f *fakeRegistry) Find(_ context.Context, siteID, emailKey string) (*model.SyncRegistryEntry, error) {
	if e, ok := f.byKey[siteID+"|"+emailKey]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRegistry) Upsert(_ context.Context, e *model.SyncRegistryEntry) error {
	copied := *e
	f.byKey[e.SiteID+"|"+e.EmailKey] = &copied
	return nil
}

type fakeTasks struct {
	byLead map[uuid.UUID][]*model.Task
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byLead: map[uuid.UUID][]*model.Task{}}
}

func (f *fakeTasks) ListByLead(_ context.Context, leadID uuid.UUID) ([]model.Task, error) {
	var out []model.Task
	for _, t := range f.byLead[leadID] {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTasks) Create(_ context.Context, t *model.Task) error {
	copied := *t
	f.byLead[t.LeadID] = append(f.byLead[t.LeadID], &copied)
	return nil
}

func (f *fakeTasks) Complete(_ context.Context, id uuid.UUID) error {
	for _, tasks := range f.byLead {
		for _, t := range tasks {
			if t.ID == id {
				t.Status = model.TaskStatusCompleted
				return nil
			}
		}
	}
	return fmt.Errorf("task %s not found", id)
}

type fakeTeam struct {
	byKey map[string]*model.TeamMember
}

func newFakeTeam() *fakeTeam {
	return &fakeTeam{byKey: map[string]*model.TeamMember{}}
}

func (f *fakeTeam) FindByEmail(_ context.Context, siteID, email string) (*model.TeamMember, error) {
	if m, ok := f.byKey[siteID+"|"+email]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

type fakeMailbox struct {
	sent    []model.RawEmail
	inbox   []model.RawEmail
	sentErr error
}

func (f *fakeMailbox) FetchSentEmails(_ context.Context, _ int, _ time.Time) ([]model.RawEmail, error) {
	if f.sentErr != nil {
		return nil, f.sentErr
	}
	return append([]model.RawEmail(nil), f.sent...), nil
}

func (f *fakeMailbox) FetchEmails(_ context.Context, _ int, _ time.Time) ([]model.RawEmail, error) {
	return append([]model.RawEmail(nil), f.inbox...), nil
}

type fakeEvents struct {
	routingKeys []string
}

func (f *fakeEvents) Enqueue(_ context.Context, _, _, routingKey string, _ any) error {
	f.routingKeys = append(f.routingKeys, routingKey)
	return nil
}
