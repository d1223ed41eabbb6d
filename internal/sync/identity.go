package sync

import (
	"strconv"
	"strings"

	"mailsync/internal/model"
)

// Generic tokens that show up in id fields but identify nothing.
var placeholderIDs = map[string]struct{}{
	"test":      {},
	"temp":      {},
	"undefined": {},
	"null":      {},
	"msg":       {},
	"email":     {},
	"id":        {},
}

// ResolveEmailID derives the single correlation key for a raw email from
// its candidate id fields, in fixed priority order: the RFC 5322
// Message-ID first (the only one standardized to be globally unique),
// then the mailbox-assigned id, then the legacy field, then the IMAP UID.
// Returns "" when no candidate is usable; callers must treat that as a
// legitimate outcome, not an error.
func ResolveEmailID(e *model.RawEmail) string {
	candidates := []string{
		e.MessageID,
		e.MailboxID,
		e.LegacyID,
	}
	if e.UID != 0 {
		candidates = append(candidates, strconv.FormatUint(uint64(e.UID), 10))
	}

	for _, candidate := range candidates {
		if isValidID(candidate) {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// isValidID rejects candidates that are too short, generic placeholders,
// or small numbers. Numbers up to 100 are sequence offsets handed out by
// mail servers and are unsafe to correlate on.
func isValidID(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 {
		return false
	}

	if _, generic := placeholderIDs[strings.ToLower(s)]; generic {
		return false
	}

	if n, err := strconv.Atoi(s); err == nil && n <= 100 {
		return false
	}

	return true
}
