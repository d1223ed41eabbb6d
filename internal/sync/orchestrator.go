package sync

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/extract"
	"mailsync/internal/mailbox"
	"mailsync/internal/model"
	"mailsync/pkg/logger"
	"mailsync/pkg/metrics"
	"mailsync/pkg/trace"
	"mailsync/pkg/util"
)

const (
	// maxThreadDepth stops thread expansion from re-expanding the emails
	// it discovered. One level is all the original folder layout needs.
	maxThreadDepth = 1

	// ErrorCodeMailbox marks batch failures where the mailbox itself is
	// unreachable or misconfigured, as opposed to "nothing to sync".
	ErrorCodeMailbox = "mailbox_unavailable"
)

var addressRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// direction of an email relative to the synced mailbox account.
type direction int

const (
	outbound direction = iota // fetched from the sent folder
	inbound                   // fetched from the inbox by thread expansion
)

// Config carries the orchestrator tunables, derived from yaml.
type Config struct {
	AccountEmail         string
	InternalDomains      []string
	DefaultLimit         int
	DefaultSince         time.Duration
	MinContentLength     int
	ConversationLookback time.Duration
	ThreadLookback       time.Duration
	ThreadFetchLimit     int
	BatchBudget          time.Duration
}

// ConfigFrom maps the yaml sections onto an orchestrator Config.
func ConfigFrom(syncCfg config.SyncConfig, mailboxCfg config.MailboxConfig) Config {
	return Config{
		AccountEmail:         mailboxCfg.AccountEmail,
		InternalDomains:      syncCfg.InternalDomains,
		DefaultLimit:         syncCfg.DefaultLimit,
		DefaultSince:         time.Duration(syncCfg.DefaultSinceHours) * time.Hour,
		MinContentLength:     syncCfg.MinContentLength,
		ConversationLookback: time.Duration(syncCfg.ConversationLookbackDays) * 24 * time.Hour,
		ThreadLookback:       time.Duration(syncCfg.ThreadLookbackDays) * 24 * time.Hour,
		ThreadFetchLimit:     syncCfg.ThreadFetchLimit,
		BatchBudget:          time.Duration(syncCfg.BatchBudgetSecs) * time.Second,
	}
}

// Deduper is the optional Redis once-guard in front of the registry.
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

// Orchestrator drives the per-email pipeline end to end. Emails are
// processed strictly one at a time so every duplicate check sees the
// effects of earlier emails in the same batch; correctness under
// timeout-and-rerun rests entirely on that check being idempotent.
type Orchestrator struct {
	leads         LeadStore
	conversations ConversationStore
	messages      MessageStore
	registry      RegistryStore
	tasks         TaskStore
	team          TeamMemberStore
	mailbox       mailbox.Client
	extractor     *extract.Extractor
	dedup         *DuplicateDetector
	threads       *ThreadResolver
	deduper       Deduper
	events        EventSink
	cfg           Config
	log           *zap.Logger
}

func NewOrchestrator(
	leads LeadStore,
	conversations ConversationStore,
	messages MessageStore,
	registry RegistryStore,
	tasks TaskStore,
	team TeamMemberStore,
	mb mailbox.Client,
	extractor *extract.Extractor,
	dedup *DuplicateDetector,
	threads *ThreadResolver,
	deduper Deduper,
	events EventSink,
	cfg Config,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		leads:         leads,
		conversations: conversations,
		messages:      messages,
		registry:      registry,
		tasks:         tasks,
		team:          team,
		mailbox:       mb,
		extractor:     extractor,
		dedup:         dedup,
		threads:       threads,
		deduper:       deduper,
		events:        events,
		cfg:           cfg,
		log:           log,
	}
}

// emailResult is the explicit per-email accumulator folded into the
// batch summary; nothing in the pipeline mutates shared counters.
type emailResult struct {
	outcome        model.EmailOutcome
	newLead        bool
	nameUpdated    bool
	statusUpdated  bool
	assigned       bool
	taskCreated    bool
	threadDetected bool
	messageCreated bool
	suppressed     bool
	threadResults  []emailResult
}

// SyncBatch runs one batch invocation: fetch sent mail, push every email
// through the pipeline, return the summary. Per-email failures are
// recorded and skipped over; only a mailbox-level failure aborts.
func (o *Orchestrator) SyncBatch(ctx context.Context, req model.SyncRequest) *model.BatchSummary {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	log := logger.WithTrace(ctx, o.log).With(zap.String("site_id", req.SiteID))

	limit := req.Limit
	if limit <= 0 {
		limit = o.cfg.DefaultLimit
	}
	since := o.resolveSince(req.SinceDate, log)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.BatchBudget)
	defer cancel()

	log.Info("Starting email sync batch",
		zap.Int("limit", limit),
		zap.Time("since", since),
	)

	emails, err := o.mailbox.FetchSentEmails(ctx, limit, since)
	if err != nil {
		log.Error("Mailbox fetch failed, aborting batch", zap.Error(err))
		code := ErrorCodeMailbox
		if !errors.Is(err, mailbox.ErrConfiguration) {
			if retryable, kind := util.IsRetryableError(err); retryable {
				code = kind
			}
		}
		return &model.BatchSummary{
			Success:   false,
			Error:     err.Error(),
			ErrorCode: code,
			Results:   []model.EmailOutcome{},
		}
	}

	summary := &model.BatchSummary{
		Success:    true,
		EmailCount: len(emails),
		Results:    []model.EmailOutcome{},
	}

	for i := range emails {
		res := o.processOne(ctx, req.SiteID, &emails[i], outbound, 0)
		o.fold(summary, res, false)
	}

	o.publish(ctx, "sync", req.SiteID, "sync.completed", map[string]any{
		"site_id":     req.SiteID,
		"email_count": summary.EmailCount,
		"processed":   summary.ProcessedCount,
		"duration_ms": time.Since(start).Milliseconds(),
		"trace_id":    trace.FromContext(ctx),
	})

	log.Info("Email sync batch finished",
		zap.Int("email_count", summary.EmailCount),
		zap.Int("processed", summary.ProcessedCount),
		zap.Int("already_processed", summary.AlreadyProcessedCount),
		zap.Duration("took", time.Since(start)),
	)

	return summary
}

// fold merges one email's accumulator into the batch summary, then the
// thread results underneath it.
func (o *Orchestrator) fold(s *model.BatchSummary, r emailResult, fromThread bool) {
	s.Results = append(s.Results, r.outcome)
	metrics.IncrementEmailProcessed(r.outcome.Status)

	switch r.outcome.Status {
	case model.OutcomeProcessed, model.OutcomeDuplicate:
		s.ProcessedCount++
		if fromThread {
			s.ThreadEmailsSyncedCount++
		}
	case model.OutcomeAlreadyProcessed:
		s.AlreadyProcessedCount++
	case model.OutcomeSkipped:
		if r.outcome.Reason == "internal_domain" {
			s.SkippedInternalCount++
		}
	}

	if r.messageCreated {
		s.NewEmailsCount++
	}
	if r.suppressed {
		s.MessagesNotCreatedCount++
	}
	if r.newLead {
		s.NewLeadsCount++
	}
	if r.nameUpdated {
		s.NamesUpdatedCount++
	}
	if r.statusUpdated {
		s.StatusUpdatedCount++
	}
	if r.assigned {
		s.AssignedToTeamMemberCount++
	}
	if r.taskCreated {
		s.TasksCreatedCount++
	}
	if r.threadDetected {
		s.ThreadsDetectedCount++
	}

	for _, tr := range r.threadResults {
		o.fold(s, tr, true)
	}
}

// processOne runs the full pipeline for a single raw email. Every step
// is failure-tolerant: an error is logged and recorded, and the
// remaining steps still run where that makes sense.
func (o *Orchestrator) processOne(ctx context.Context, siteID string, raw *model.RawEmail, dir direction, depth int) emailResult {
	if raw.Date.IsZero() {
		raw.Date = time.Now()
	}

	emailID := ResolveEmailID(raw)
	key := registryKey(raw, emailID)
	log := logger.WithTrace(ctx, o.log).With(
		zap.String("site_id", siteID),
		zap.String("email_key", key),
	)

	res := emailResult{outcome: model.EmailOutcome{
		EmailKey: key,
		Subject:  raw.Subject,
		To:       raw.To,
	}}

	// Step 1: registry short-circuit. Cheap skip for re-runs; the
	// message-level cascade below remains the guard of record.
	if entry, err := o.registry.Find(ctx, siteID, key); err != nil {
		log.Warn("Registry lookup failed, continuing without short-circuit", zap.Error(err))
	} else if entry != nil && entry.Status == model.SyncStatusProcessed {
		res.outcome.Status = model.OutcomeAlreadyProcessed
		return res
	}

	// Redis once-guard against a concurrent invocation racing this key.
	// Fails open when Redis is down.
	if o.deduper != nil && !o.deduper.AcquireOnce(ctx, "email", siteID+":"+key) {
		res.outcome.Status = model.OutcomeAlreadyProcessed
		res.outcome.Reason = "concurrent_invocation"
		return res
	}

	// Step 2: recipient screening.
	leadAddr := o.leadAddress(raw, dir)
	if !addressRe.MatchString(leadAddr) {
		res.outcome.Status = model.OutcomeSkipped
		res.outcome.Reason = "invalid_recipient"
		o.register(ctx, siteID, key, model.SyncStatusSkipped, map[string]any{"reason": "invalid_recipient"}, log)
		return res
	}
	if o.isInternalDomain(leadAddr) {
		res.outcome.Status = model.OutcomeSkipped
		res.outcome.Reason = "internal_domain"
		o.register(ctx, siteID, key, model.SyncStatusSkipped, map[string]any{"reason": "internal_domain", "recipient": leadAddr}, log)
		return res
	}

	// Step 3: resolve or create the lead.
	lead, created, err := o.resolveLead(ctx, siteID, leadAddr, raw, dir)
	if err != nil {
		log.Error("Lead resolution failed", zap.Error(err))
		res.outcome.Status = model.OutcomeError
		res.outcome.Reason = fmt.Sprintf("lead: %v", err)
		o.register(ctx, siteID, key, model.SyncStatusError, map[string]any{"error": err.Error()}, log)
		if o.deduper != nil {
			o.deduper.Release(ctx, "email", siteID+":"+key)
		}
		return res
	}
	res.newLead = created
	res.outcome.LeadID = lead.ID.String()
	if created {
		o.publish(ctx, "lead", lead.ID.String(), "lead.created", map[string]any{
			"lead_id": lead.ID.String(),
			"site_id": siteID,
			"email":   lead.Email,
		})
	}

	// Step 4: improve the display name when the new candidate is
	// genuinely better than what we hold.
	if !created {
		res.nameUpdated = o.improveName(ctx, lead, raw, dir, log)
	}

	// Step 5: assign to a team member when the sending account is one.
	res.assigned = o.assignTeamMember(ctx, siteID, lead, log)

	// Step 6: resolve or create the conversation.
	conv, err := o.resolveConversation(ctx, siteID, lead, raw)
	if err != nil {
		log.Error("Conversation resolution failed", zap.Error(err))
		res.outcome.Status = model.OutcomeError
		res.outcome.Reason = fmt.Sprintf("conversation: %v", err)
		o.register(ctx, siteID, key, model.SyncStatusError, map[string]any{"error": err.Error()}, log)
		if o.deduper != nil {
			o.deduper.Release(ctx, "email", siteID+":"+key)
		}
		return res
	}

	// Step 7: dedup cascade, then message creation.
	extracted := o.extractor.Extract(raw)
	content := NormalizeText(extracted.Text)

	dup := o.dedup.Check(ctx, raw, emailID, conv.ID, content)
	detail := map[string]any{"conversation_id": conv.ID.String()}

	switch {
	case dup.Duplicate:
		res.outcome.Status = model.OutcomeDuplicate
		res.outcome.Reason = dup.Reason
		res.outcome.MessageID = dup.ExistingMessageID
		detail["duplicate_of"] = dup.ExistingMessageID
		detail["dedup_reason"] = dup.Reason
	case len(content) < o.cfg.MinContentLength:
		// too little text to be worth a message row; everything else
		// about this email still counts
		res.outcome.Status = model.OutcomeProcessed
		res.outcome.Reason = "content_insufficient"
		res.suppressed = true
		detail["message_created"] = false
		detail["content_length"] = len(content)
	default:
		msg, err := o.createMessage(ctx, conv.ID, raw, emailID, content, dir)
		if err != nil {
			log.Error("Message creation failed", zap.Error(err))
			res.outcome.Status = model.OutcomeError
			res.outcome.Reason = fmt.Sprintf("message: %v", err)
			o.register(ctx, siteID, key, model.SyncStatusError, map[string]any{"error": err.Error()}, log)
			if o.deduper != nil {
				o.deduper.Release(ctx, "email", siteID+":"+key)
			}
			return res
		}
		res.messageCreated = true
		res.outcome.Status = model.OutcomeProcessed
		res.outcome.MessageID = msg.ID.String()
		detail["message_id"] = msg.ID.String()
		o.publish(ctx, "message", msg.ID.String(), "message.created", map[string]any{
			"message_id":      msg.ID.String(),
			"conversation_id": conv.ID.String(),
			"lead_id":         lead.ID.String(),
			"site_id":         siteID,
		})
	}

	if err := o.conversations.Touch(ctx, conv.ID, raw.Date); err != nil {
		log.Warn("Failed to touch conversation", zap.Error(err))
	}

	// Step 8: advance the lead status, forward only.
	if res.messageCreated || dup.Duplicate {
		res.statusUpdated = o.advanceStatus(ctx, lead, log)
	}

	// Step 9: thread expansion re-enters this same pipeline for every
	// related email, so expansion can never sidestep the cascade.
	if info := DetectThread(raw); info.IsThread {
		res.threadDetected = true
		if depth < maxThreadDepth {
			related, err := o.threads.Expand(ctx, info, leadAddr, raw.Date)
			if err != nil {
				log.Warn("Thread expansion failed", zap.Error(err))
			}
			for i := range related {
				res.threadResults = append(res.threadResults, o.processOne(ctx, siteID, &related[i], inbound, depth+1))
			}
		}
	}

	// Step 10: follow-up task.
	res.taskCreated = o.ensureTask(ctx, siteID, lead, log)

	// Step 11: registry entry for the next run.
	o.register(ctx, siteID, key, model.SyncStatusProcessed, detail, log)

	return res
}

func (o *Orchestrator) resolveSince(sinceDate string, log *zap.Logger) time.Time {
	if sinceDate == "" {
		return time.Now().Add(-o.cfg.DefaultSince)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, sinceDate); err == nil {
			return t
		}
	}
	log.Warn("Unparseable since_date, defaulting to last 24h", zap.String("since_date", sinceDate))
	return time.Now().Add(-o.cfg.DefaultSince)
}

// leadAddress picks the lead side of the email: the recipient for
// outgoing mail, the sender for inbox mail found by thread expansion.
func (o *Orchestrator) leadAddress(raw *model.RawEmail, dir direction) string {
	if dir == inbound {
		return NormalizeAddress(raw.From)
	}
	return NormalizeAddress(raw.To)
}

func (o *Orchestrator) isInternalDomain(addr string) bool {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false
	}
	domain := addr[at+1:]
	for _, internal := range o.cfg.InternalDomains {
		internal = strings.ToLower(strings.TrimSpace(internal))
		if internal == "" {
			continue
		}
		if domain == internal || strings.HasSuffix(domain, "."+internal) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) resolveLead(ctx context.Context, siteID, leadAddr string, raw *model.RawEmail, dir direction) (*model.Lead, bool, error) {
	lead, err := o.leads.FindByEmail(ctx, siteID, leadAddr)
	if err != nil {
		return nil, false, err
	}
	if lead != nil {
		return lead, false, nil
	}

	name := ""
	for _, candidate := range nameCandidates(raw, leadAddr, dir == inbound) {
		if !isGenericName(candidate) {
			name = candidate
			break
		}
	}

	lead = &model.Lead{
		ID:     uuid.New(),
		SiteID: siteID,
		Email:  leadAddr,
		Name:   name,
		Status: model.LeadStatusNew,
	}
	if err := o.leads.Create(ctx, lead); err != nil {
		return nil, false, err
	}
	return lead, true, nil
}

func (o *Orchestrator) improveName(ctx context.Context, lead *model.Lead, raw *model.RawEmail, dir direction, log *zap.Logger) bool {
	for _, candidate := range nameCandidates(raw, lead.Email, dir == inbound) {
		if betterName(lead.Name, candidate) {
			if err := o.leads.UpdateName(ctx, lead.ID, candidate); err != nil {
				log.Warn("Failed to update lead name", zap.Error(err))
				return false
			}
			lead.Name = candidate
			return true
		}
	}
	return false
}

func (o *Orchestrator) assignTeamMember(ctx context.Context, siteID string, lead *model.Lead, log *zap.Logger) bool {
	if lead.AssignedTo != nil || o.cfg.AccountEmail == "" {
		return false
	}
	member, err := o.team.FindByEmail(ctx, siteID, NormalizeAddress(o.cfg.AccountEmail))
	if err != nil {
		log.Warn("Team member lookup failed", zap.Error(err))
		return false
	}
	if member == nil {
		return false
	}
	if err := o.leads.Assign(ctx, lead.ID, member.ID); err != nil {
		log.Warn("Failed to assign lead", zap.Error(err))
		return false
	}
	lead.AssignedTo = &member.ID
	return true
}

// advanceStatus moves the lead one step forward in its lifecycle.
// Backward transitions never happen here.
func (o *Orchestrator) advanceStatus(ctx context.Context, lead *model.Lead, log *zap.Logger) bool {
	if lead.Status.Rank() >= model.LeadStatusContacted.Rank() {
		return false
	}
	if err := o.leads.UpdateStatus(ctx, lead.ID, model.LeadStatusContacted); err != nil {
		log.Warn("Failed to advance lead status", zap.Error(err))
		return false
	}
	lead.Status = model.LeadStatusContacted
	return true
}

func (o *Orchestrator) resolveConversation(ctx context.Context, siteID string, lead *model.Lead, raw *model.RawEmail) (*model.Conversation, error) {
	activeSince := time.Now().Add(-o.cfg.ConversationLookback)
	conv, err := o.conversations.FindActive(ctx, lead.ID, model.ChannelEmail, activeSince)
	if err != nil {
		return nil, err
	}

	title := NormalizeText(StripThreadPrefix(raw.Subject))

	if conv == nil {
		conv = &model.Conversation{
			ID:            uuid.New(),
			LeadID:        lead.ID,
			SiteID:        siteID,
			Channel:       model.ChannelEmail,
			Title:         title,
			LastMessageAt: raw.Date,
		}
		if err := o.conversations.Create(ctx, conv); err != nil {
			return nil, err
		}
		return conv, nil
	}

	// first meaningful subject wins the title
	if conv.Title == "" && title != "" {
		if err := o.conversations.SetTitle(ctx, conv.ID, title); err == nil {
			conv.Title = title
		}
	}
	return conv, nil
}

func (o *Orchestrator) createMessage(ctx context.Context, conversationID uuid.UUID, raw *model.RawEmail, emailID, content string, dir direction) (*model.Message, error) {
	role := model.MessageRoleTeamMember
	if dir == inbound {
		role = model.MessageRoleLead
	}

	correlationID := emailID
	if correlationID == "" {
		correlationID = "none"
	}

	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
		Metadata: map[string]any{
			"channel":  model.ChannelEmail,
			"email_id": correlationID,
			"delivery": map[string]any{
				"to":       raw.To,
				"subject":  raw.Subject,
				"sent_at":  raw.Date.Format(time.RFC3339),
				"email_id": correlationID,
			},
			"normalized_subject": NormalizeSubject(raw.Subject),
			"normalized_to":      NormalizeAddress(raw.To),
			"dedup_version":      model.DedupVersion,
		},
	}
	if err := o.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ensureTask creates the awareness-stage follow-up unless the lead's
// journey already reached it; a pending prospecting task gets completed
// instead of duplicated.
func (o *Orchestrator) ensureTask(ctx context.Context, siteID string, lead *model.Lead, log *zap.Logger) bool {
	tasks, err := o.tasks.ListByLead(ctx, lead.ID)
	if err != nil {
		log.Warn("Task lookup failed", zap.Error(err))
		return false
	}

	for _, t := range tasks {
		if model.StageRank(t.Stage) >= model.StageRank(model.TaskStageAwareness) {
			return false
		}
	}

	for _, t := range tasks {
		if t.Kind == model.TaskKindProspecting && t.Status == model.TaskStatusPending {
			if err := o.tasks.Complete(ctx, t.ID); err != nil {
				log.Warn("Failed to complete prospecting task", zap.Error(err))
			}
			return false
		}
	}

	task := &model.Task{
		ID:     uuid.New(),
		LeadID: lead.ID,
		SiteID: siteID,
		Kind:   model.TaskKindFollowUp,
		Stage:  model.TaskStageAwareness,
		Status: model.TaskStatusPending,
		Title:  "Follow up with " + lead.Email,
	}
	if err := o.tasks.Create(ctx, task); err != nil {
		log.Warn("Failed to create follow-up task", zap.Error(err))
		return false
	}
	return true
}

func (o *Orchestrator) register(ctx context.Context, siteID, key string, status model.SyncStatus, detail map[string]any, log *zap.Logger) {
	entry := &model.SyncRegistryEntry{
		SiteID:   siteID,
		EmailKey: key,
		Status:   status,
		Detail:   detail,
	}
	if err := o.registry.Upsert(ctx, entry); err != nil {
		log.Warn("Failed to write sync registry entry", zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, aggregateType, aggregateID, routingKey string, payload map[string]any) {
	if o.events == nil {
		return
	}
	if err := o.events.Enqueue(ctx, aggregateType, aggregateID, routingKey, payload); err != nil {
		logger.WithTrace(ctx, o.log).Warn("Failed to enqueue event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// registryKey is the best-effort registry identifier: the resolved email
// id when one exists, otherwise a composite of the normalized subject,
// recipient and timestamp. The composite is ambiguous by construction,
// which is exactly why the registry is only a fast path.
func registryKey(raw *model.RawEmail, emailID string) string {
	if emailID != "" {
		return emailID
	}
	return fmt.Sprintf("%s|%s|%d",
		NormalizeSubject(raw.Subject),
		NormalizeAddress(raw.To),
		raw.Date.Unix(),
	)
}
