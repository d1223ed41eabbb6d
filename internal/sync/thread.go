package sync

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailsync/internal/mailbox"
	"mailsync/internal/model"
	"mailsync/pkg/metrics"
)

// Reply types reported by thread detection.
const (
	ReplyTypeReply   = "reply"
	ReplyTypeForward = "forward"
)

// one leading reply/forward marker, optionally preceded by more of them
var threadPrefixRe = regexp.MustCompile(`(?i)^(re|fwd|fw)\s*:\s*`)

// ThreadInfo is the thread detection verdict for one email.
type ThreadInfo struct {
	IsThread   bool
	Subject    string // subject with the leading prefix stripped once
	ReplyType  string
	InReplyTo  string
	References []string
}

// DetectThread classifies an email as part of a reply/forward chain. A
// subject prefix marks it, and so does an In-Reply-To or References
// header even when the subject carries no prefix.
func DetectThread(e *model.RawEmail) ThreadInfo {
	info := ThreadInfo{
		Subject:    strings.TrimSpace(e.Subject),
		InReplyTo:  e.InReplyTo,
		References: e.References,
	}

	if loc := threadPrefixRe.FindStringIndex(info.Subject); loc != nil {
		prefix := strings.ToLower(info.Subject[:loc[1]])
		info.IsThread = true
		info.Subject = strings.TrimSpace(info.Subject[loc[1]:])
		if strings.HasPrefix(prefix, "re") {
			info.ReplyType = ReplyTypeReply
		} else {
			info.ReplyType = ReplyTypeForward
		}
		return info
	}

	if e.InReplyTo != "" || len(e.References) > 0 {
		info.IsThread = true
		info.ReplyType = ReplyTypeReply
	}

	return info
}

// StripThreadPrefix removes one leading reply/forward marker.
func StripThreadPrefix(subject string) string {
	subject = strings.TrimSpace(subject)
	if loc := threadPrefixRe.FindStringIndex(subject); loc != nil {
		return strings.TrimSpace(subject[loc[1]:])
	}
	return subject
}

// ThreadResolver pulls the inbox side of a detected thread into the
// pipeline. Expansion only supplies additional candidate emails; each of
// them goes through the full per-email pipeline afterwards, so it can
// never bypass the duplicate cascade.
type ThreadResolver struct {
	mailbox    mailbox.Client
	lookback   time.Duration
	fetchLimit int
	logger     *zap.Logger
}

func NewThreadResolver(mb mailbox.Client, lookback time.Duration, fetchLimit int, logger *zap.Logger) *ThreadResolver {
	return &ThreadResolver{
		mailbox:    mb,
		lookback:   lookback,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Expand fetches inbox mail from the participant around the thread's
// time window and filters it down to messages of the same logical
// subject.
func (t *ThreadResolver) Expand(ctx context.Context, info ThreadInfo, participant string, sentDate time.Time) ([]model.RawEmail, error) {
	if !info.IsThread {
		return nil, nil
	}

	since := sentDate.Add(-t.lookback)
	emails, err := t.mailbox.FetchEmails(ctx, t.fetchLimit, since)
	if err != nil {
		return nil, err
	}

	wantFrom := NormalizeAddress(participant)
	wantSubject := NormalizeSubject(info.Subject)

	var related []model.RawEmail
	for _, e := range emails {
		if NormalizeAddress(e.From) != wantFrom {
			continue
		}
		subject := NormalizeSubject(StripThreadPrefix(e.Subject))
		if !subjectsRelate(subject, wantSubject) {
			continue
		}
		related = append(related, e)
	}

	if len(related) > 0 {
		metrics.ThreadsExpanded.Inc()
		t.logger.Info("Thread expanded",
			zap.String("participant", wantFrom),
			zap.String("thread_subject", info.Subject),
			zap.Int("related_emails", len(related)),
		)
	}

	return related, nil
}

// subjectsRelate accepts equality and containment either way; thread
// subjects mutate ("X", "Re: X (updated)") but keep a common core.
func subjectsRelate(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}
