package sync

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

// Cascade level tags, reported in DupResult.Reason and metrics.
const (
	ReasonCorrelationID      = "correlation_id"
	ReasonExactMatch         = "exact_match"
	ReasonTemporalRange      = "temporal_range"
	ReasonRecipientProximity = "recipient_proximity"
	ReasonContentSimilarity  = "content_similarity"
)

// DedupConfig carries the cascade thresholds. The temporal-range values
// are heuristics, not laws; keep them tunable.
type DedupConfig struct {
	// ExactWindow is the max timestamp distance for an exact
	// subject+recipient match.
	ExactWindow time.Duration
	// NeighborGap is the minimum distance to both neighbors for the
	// temporal-range rule; anything closer is just clock jitter.
	NeighborGap time.Duration
	// RangeSpan is the max distance between the two neighbors.
	RangeSpan time.Duration
	// BoundaryWindow is the max distance to the first/last message of a
	// same-subject sequence.
	BoundaryWindow time.Duration
	// RecipientWindow is the loose same-recipient fallback window.
	RecipientWindow time.Duration
	// ContentWindow restricts content comparison to recent messages.
	ContentWindow time.Duration
	// ContentPrefixLen is how much of the shorter text must be contained
	// in the longer one.
	ContentPrefixLen int
}

func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		ExactWindow:      5 * time.Minute,
		NeighborGap:      time.Second,
		RangeSpan:        24 * time.Hour,
		BoundaryWindow:   30 * time.Minute,
		RecipientWindow:  time.Hour,
		ContentWindow:    24 * time.Hour,
		ContentPrefixLen: 100,
	}
}

// DedupConfigFrom maps the yaml tunables onto a DedupConfig.
func DedupConfigFrom(cfg config.SyncConfig) DedupConfig {
	d := DefaultDedupConfig()
	if cfg.ExactWindowMins > 0 {
		d.ExactWindow = time.Duration(cfg.ExactWindowMins) * time.Minute
	}
	if cfg.RangeSpanHours > 0 {
		d.RangeSpan = time.Duration(cfg.RangeSpanHours) * time.Hour
	}
	if cfg.BoundaryWindowMins > 0 {
		d.BoundaryWindow = time.Duration(cfg.BoundaryWindowMins) * time.Minute
	}
	if cfg.RecipientWindowMins > 0 {
		d.RecipientWindow = time.Duration(cfg.RecipientWindowMins) * time.Minute
	}
	if cfg.ContentWindowHours > 0 {
		d.ContentWindow = time.Duration(cfg.ContentWindowHours) * time.Hour
	}
	return d
}

// DupResult is the cascade verdict.
type DupResult struct {
	Duplicate         bool
	ExistingMessageID string
	Reason            string
}

// DuplicateDetector decides whether a raw email already has a stored
// message in its conversation. The check is an ordered cascade; the
// first level that matches wins. No level may fail the batch: a lookup
// error degrades to "no match".
type DuplicateDetector struct {
	messages MessageStore
	cfg      DedupConfig
	logger   *zap.Logger
}

func NewDuplicateDetector(messages MessageStore, cfg DedupConfig, logger *zap.Logger) *DuplicateDetector {
	return &DuplicateDetector{
		messages: messages,
		cfg:      cfg,
		logger:   logger,
	}
}

// messageView is a message reduced to its comparison fields, normalized
// once up front.
type messageView struct {
	id        string
	subject   string
	to        string
	sentAt    time.Time
	createdAt time.Time
	content   string
	ids       []string
}

func viewOf(m *model.Message) messageView {
	v := messageView{
		id:        m.ID.String(),
		subject:   m.NormalizedSubject(),
		to:        m.NormalizedRecipient(),
		sentAt:    m.SentAt(),
		createdAt: m.CreatedAt,
		content:   m.Content,
		ids:       m.CorrelationIDs(),
	}
	// messages written before the normalized pair was recorded
	if v.subject == "" {
		v.subject = NormalizeSubject(m.DeliverySubject())
	}
	if v.to == "" {
		v.to = NormalizeAddress(m.DeliveryTo())
	}
	return v
}

// Check runs the cascade for one candidate email against its
// conversation. content is the candidate's already-normalized body text.
func (d *DuplicateDetector) Check(ctx context.Context, raw *model.RawEmail, emailID string, conversationID uuid.UUID, content string) DupResult {
	existing, err := d.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		// degrade, never abort: an unreadable conversation means this
		// level of protection is unavailable, not that the email is new
		// beyond doubt, and the registry still guards re-runs
		d.logger.Warn("Dedup lookup failed, treating email as new",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
		return DupResult{}
	}
	if len(existing) == 0 {
		return DupResult{}
	}

	views := make([]messageView, 0, len(existing))
	for i := range existing {
		views = append(views, viewOf(&existing[i]))
	}

	candidate := messageView{
		subject: NormalizeSubject(raw.Subject),
		to:      NormalizeAddress(raw.To),
		sentAt:  raw.Date,
		content: content,
	}

	checks := []func([]messageView, messageView, string) DupResult{
		d.byCorrelationID,
		d.byExactMatch,
		d.byTemporalRange,
		d.byRecipientProximity,
		d.byContentSimilarity,
	}
	for _, check := range checks {
		if res := check(views, candidate, emailID); res.Duplicate {
			metrics.IncrementDuplicate(res.Reason)
			return res
		}
	}

	return DupResult{}
}

// Level 1: correlation-id lookup across every metadata location the
// schema has used. Strongest signal; schema drift is why the view
// collects from all historical shapes.
func (d *DuplicateDetector) byCorrelationID(views []messageView, _ messageView, emailID string) DupResult {
	if emailID == "" {
		return DupResult{}
	}
	for _, v := range views {
		for _, id := range v.ids {
			if id == emailID {
				return DupResult{Duplicate: true, ExistingMessageID: v.id, Reason: ReasonCorrelationID}
			}
		}
	}
	return DupResult{}
}

// Level 2: same subject, same recipient, timestamps within the exact
// window. Catches an immediate re-fetch of the same send event when no
// id survived.
func (d *DuplicateDetector) byExactMatch(views []messageView, c messageView, _ string) DupResult {
	if c.subject == "" || c.to == "" {
		return DupResult{}
	}
	for _, v := range views {
		if v.subject == c.subject && v.to == c.to && absDuration(c.sentAt.Sub(v.sentAt)) <= d.cfg.ExactWindow {
			return DupResult{Duplicate: true, ExistingMessageID: v.id, Reason: ReasonExactMatch}
		}
	}
	return DupResult{}
}

// Level 3: temporal-range consistency over the same-subject sequence. A
// candidate that slots strictly between two known copies of the same
// logical send, or lands right next to the sequence boundary, is the
// same event observed twice. This level is probabilistic; every hit is
// logged for audit.
func (d *DuplicateDetector) byTemporalRange(views []messageView, c messageView, _ string) DupResult {
	if c.subject == "" {
		return DupResult{}
	}

	var seq []messageView
	for _, v := range views {
		if v.subject == c.subject {
			seq = append(seq, v)
		}
	}
	if len(seq) == 0 {
		return DupResult{}
	}
	sortViewsBySentAt(seq)

	for i := 0; i+1 < len(seq); i++ {
		prev, next := seq[i], seq[i+1]
		if !c.sentAt.After(prev.sentAt) || !c.sentAt.Before(next.sentAt) {
			continue
		}
		gapPrev := c.sentAt.Sub(prev.sentAt)
		gapNext := next.sentAt.Sub(c.sentAt)
		span := next.sentAt.Sub(prev.sentAt)
		if gapPrev <= d.cfg.NeighborGap || gapNext <= d.cfg.NeighborGap || span > d.cfg.RangeSpan {
			continue
		}

		var match *messageView
		if c.to != "" && c.to == prev.to {
			match = &prev
		} else if c.to != "" && c.to == next.to {
			match = &next
		}
		if match != nil {
			d.auditTemporalRange(c, prev.id, next.id, match.id)
			return DupResult{Duplicate: true, ExistingMessageID: match.id, Reason: ReasonTemporalRange}
		}
	}

	first, last := seq[0], seq[len(seq)-1]
	if c.to != "" && c.to == first.to && absDuration(c.sentAt.Sub(first.sentAt)) <= d.cfg.BoundaryWindow {
		d.auditTemporalRange(c, first.id, last.id, first.id)
		return DupResult{Duplicate: true, ExistingMessageID: first.id, Reason: ReasonTemporalRange}
	}
	if c.to != "" && c.to == last.to && absDuration(c.sentAt.Sub(last.sentAt)) <= d.cfg.BoundaryWindow {
		d.auditTemporalRange(c, first.id, last.id, last.id)
		return DupResult{Duplicate: true, ExistingMessageID: last.id, Reason: ReasonTemporalRange}
	}

	return DupResult{}
}

// Level 4: any message to the same recipient within the recipient
// window, subject not required. Deliberately loose; transactional sends
// vary subjects slightly run to run.
func (d *DuplicateDetector) byRecipientProximity(views []messageView, c messageView, _ string) DupResult {
	if c.to == "" {
		return DupResult{}
	}
	for _, v := range views {
		if v.to == c.to && absDuration(c.sentAt.Sub(v.sentAt)) <= d.cfg.RecipientWindow {
			return DupResult{Duplicate: true, ExistingMessageID: v.id, Reason: ReasonRecipientProximity}
		}
	}
	return DupResult{}
}

// Level 5: content-similarity fallback. Same exact subject, message row
// created recently, and the normalized bodies are equal or one contains
// the other's leading prefix.
func (d *DuplicateDetector) byContentSimilarity(views []messageView, c messageView, _ string) DupResult {
	if c.subject == "" || c.content == "" {
		return DupResult{}
	}
	cutoff := time.Now().Add(-d.cfg.ContentWindow)
	for _, v := range views {
		if v.subject != c.subject || v.content == "" || v.createdAt.Before(cutoff) {
			continue
		}
		if contentsMatch(c.content, v.content, d.cfg.ContentPrefixLen) {
			return DupResult{Duplicate: true, ExistingMessageID: v.id, Reason: ReasonContentSimilarity}
		}
	}
	return DupResult{}
}

func (d *DuplicateDetector) auditTemporalRange(c messageView, firstID, secondID, matchedID string) {
	d.logger.Info("Temporal-range duplicate classification",
		zap.String("candidate_subject", c.subject),
		zap.String("candidate_to", c.to),
		zap.Time("candidate_sent_at", c.sentAt),
		zap.String("neighbor_first", firstID),
		zap.String("neighbor_second", secondID),
		zap.String("matched_message", matchedID),
	)
}

func contentsMatch(a, b string, prefixLen int) bool {
	if a == b {
		return true
	}
	return strings.Contains(a, prefix(b, prefixLen)) || strings.Contains(b, prefix(a, prefixLen))
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func sortViewsBySentAt(views []messageView) {
	sort.Slice(views, func(i, j int) bool {
		return views[i].sentAt.Before(views[j].sentAt)
	})
}
