package model

import "time"

// BodyKind tags the shape a fetcher delivered the body in. Mail sources
// are inconsistent here: some hand back plain text, some raw HTML, some a
// nested text/html pair.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyPlainText
	BodyHTML
	BodyParts // separate text and html parts
)

// EmailBody is the tagged body variant.
type EmailBody struct {
	Kind BodyKind
	Text string
	HTML string
}

// RawEmail is the mailbox's view of a message. It is ephemeral; nothing
// persists it as-is. Every identifier field is optional, which is why
// identity resolution is a dedicated step.
type RawEmail struct {
	// MessageID is the RFC 5322 Message-ID header, the only identifier
	// standardized to be globally unique.
	MessageID string
	// MailboxID is a provider-assigned id, stable within one mailbox.
	MailboxID string
	// LegacyID carries the alternate id field older fetchers populated.
	LegacyID string
	// UID is the IMAP sequence number. Small values are offsets, not
	// identifiers, and must not be used for correlation.
	UID uint32

	Subject  string
	From     string
	FromName string
	ReplyTo  string
	To       string
	Date     time.Time

	InReplyTo  string
	References []string

	Body EmailBody
}
