package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"mailsync/internal/config"
	"mailsync/internal/model"
	"mailsync/pkg/circuitbreaker"
	"mailsync/pkg/metrics"
)

// Folder name fallbacks tried when the configured folder cannot be
// selected. Providers disagree on what the sent folder is called.
var sentFolderFallbacks = []string{"Sent", "Sent Items", "Sent Messages", "[Gmail]/Sent Mail", "INBOX.Sent"}

// IMAPClient implements Client over go-imap v2. Each fetch dials a fresh
// session; the sync runs on minute-scale schedules, so holding sessions
// open buys nothing and leaks on provider-side idle timeouts.
type IMAPClient struct {
	cfg     config.MailboxConfig
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewIMAPClient(cfg config.MailboxConfig, logger *zap.Logger) *IMAPClient {
	return &IMAPClient{
		cfg:     cfg,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// FetchSentEmails returns outgoing mail from the sent folder.
func (c *IMAPClient) FetchSentEmails(ctx context.Context, limit int, since time.Time) ([]model.RawEmail, error) {
	folders := append([]string{c.cfg.SentFolder}, sentFolderFallbacks...)
	return c.fetchFolder(ctx, folders, limit, since)
}

// FetchEmails returns incoming mail from the inbox.
func (c *IMAPClient) FetchEmails(ctx context.Context, limit int, since time.Time) ([]model.RawEmail, error) {
	return c.fetchFolder(ctx, []string{c.cfg.InboxFolder}, limit, since)
}

func (c *IMAPClient) fetchFolder(ctx context.Context, folders []string, limit int, since time.Time) ([]model.RawEmail, error) {
	// Each fetch gets its own timeout, shorter than the batch budget, so
	// a hung server cannot eat the whole invocation.
	timeout := time.Duration(c.cfg.TimeoutSecs) * time.Second
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var emails []model.RawEmail
	start := time.Now()
	err := c.breaker.Execute(func() error {
		var err error
		emails, err = c.fetchOnce(fetchCtx, folders, limit, since)
		return err
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordMailboxFetch(folders[0], status, time.Since(start))

	return emails, err
}

func (c *IMAPClient) fetchOnce(ctx context.Context, folders []string, limit int, since time.Time) ([]model.RawEmail, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	folder, err := c.selectFolder(client, folders)
	if err != nil {
		return nil, err
	}

	uids, err := c.searchSince(client, since)
	if err != nil {
		// Some servers reject SINCE on certain folders. Retry once
		// unfiltered; the limit still bounds the result.
		c.logger.Warn("IMAP search with date filter failed, retrying unfiltered",
			zap.String("folder", folder),
			zap.Error(err),
		)
		uids, err = c.searchSince(client, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("imap search failed: %w", err)
		}
	}

	if len(uids) == 0 {
		return nil, nil
	}

	// most recent first, bounded by limit
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	return c.fetchMessages(client, uids)
}

func (c *IMAPClient) connect(_ context.Context) (*imapclient.Client, error) {
	if c.cfg.Host == "" || c.cfg.Username == "" {
		return nil, fmt.Errorf("%w: imap host or username missing", ErrConfiguration)
	}

	addr := c.cfg.Host + ":" + c.cfg.Port

	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrConfiguration, addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("%w: authentication failed for %s: %v", ErrConfiguration, c.cfg.Username, err)
	}

	return client, nil
}

func (c *IMAPClient) selectFolder(client *imapclient.Client, folders []string) (string, error) {
	var lastErr error
	for _, folder := range folders {
		if folder == "" {
			continue
		}
		if _, err := client.Select(folder, nil).Wait(); err != nil {
			lastErr = err
			continue
		}
		return folder, nil
	}
	return "", fmt.Errorf("%w: no selectable folder among %v: %v", ErrConfiguration, folders, lastErr)
}

func (c *IMAPClient) searchSince(client *imapclient.Client, since time.Time) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{}
	if !since.IsZero() {
		criteria.Since = since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	return searchData.AllUIDs(), nil
}

func (c *IMAPClient) fetchMessages(client *imapclient.Client, uids []imap.UID) ([]model.RawEmail, error) {
	uidSet := imap.UIDSetNum(uids...)

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var emails []model.RawEmail
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			c.logger.Warn("Failed to collect IMAP message, skipping", zap.Error(err))
			continue
		}

		email := rawEmailFromBuffer(buf, bodySection)
		emails = append(emails, email)
	}

	if err := fetchCmd.Close(); err != nil {
		return emails, fmt.Errorf("imap fetch failed: %w", err)
	}

	return emails, nil
}

// rawEmailFromBuffer maps a fetched message onto the pipeline's RawEmail.
func rawEmailFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) model.RawEmail {
	email := model.RawEmail{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		email.MessageID = buf.Envelope.MessageID
		email.Subject = buf.Envelope.Subject
		email.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			email.From = buf.Envelope.From[0].Addr()
			email.FromName = buf.Envelope.From[0].Name
		}
		if len(buf.Envelope.ReplyTo) > 0 {
			email.ReplyTo = buf.Envelope.ReplyTo[0].Addr()
		}
		if len(buf.Envelope.To) > 0 {
			email.To = buf.Envelope.To[0].Addr()
		}
	}

	if raw := buf.FindBodySection(section); raw != nil {
		text, html, inReplyTo, references := parseMIMEBody(raw)
		email.InReplyTo = inReplyTo
		email.References = references

		switch {
		case text != "" && html != "":
			email.Body = model.EmailBody{Kind: model.BodyParts, Text: text, HTML: html}
		case html != "":
			email.Body = model.EmailBody{Kind: model.BodyHTML, HTML: html}
		case text != "":
			email.Body = model.EmailBody{Kind: model.BodyPlainText, Text: text}
		}
	}

	return email
}

// parseMIMEBody walks the MIME tree with go-message and pulls out the
// text/plain part, the text/html part and the threading headers.
func parseMIMEBody(raw []byte) (textBody, htmlBody, inReplyTo string, references []string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// unparseable MIME: fall back to treating the payload as text
		return string(raw), "", "", nil
	}
	defer mr.Close()

	inReplyTo = strings.TrimSpace(mr.Header.Get("In-Reply-To"))
	if refs := strings.TrimSpace(mr.Header.Get("References")); refs != "" {
		references = strings.Fields(refs)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := header.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	return textBody, htmlBody, inReplyTo, references
}
