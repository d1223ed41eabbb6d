package mailbox

import (
	"context"
	"errors"
	"time"

	"mailsync/internal/model"
)

// ErrConfiguration marks a mailbox that cannot be reached or logged into.
// The orchestrator aborts the whole batch on it; there is nothing to sync
// without a mailbox, and the caller must be able to tell that apart from
// "no new mail".
var ErrConfiguration = errors.New("mailbox configuration invalid")

// Client is the mailbox fetch collaborator. Implementations return raw
// email records; they perform no dedup and no persistence.
type Client interface {
	// FetchSentEmails returns outgoing mail from the sent folder.
	FetchSentEmails(ctx context.Context, limit int, since time.Time) ([]model.RawEmail, error)
	// FetchEmails returns incoming mail from the inbox.
	FetchEmails(ctx context.Context, limit int, since time.Time) ([]model.RawEmail, error)
}
