package sync

import (
	"strings"
	"unicode"

	"mailsync/internal/model"
)

// Display names that carry no information; any real candidate beats them.
var genericNames = map[string]struct{}{
	"user":     {},
	"lead":     {},
	"unknown":  {},
	"customer": {},
	"guest":    {},
	"info":     {},
	"admin":    {},
	"contact":  {},
}

// nameCandidates lists possible display names for the lead, best first.
// The sender display name and reply-to form only apply when the lead is
// the sender; on outgoing mail those headers describe the team member.
// The last resort is a name synthesized from the local part of the
// lead's address.
func nameCandidates(e *model.RawEmail, leadEmail string, senderIsLead bool) []string {
	var candidates []string
	if senderIsLead {
		if e.FromName != "" {
			candidates = append(candidates, strings.TrimSpace(e.FromName))
		}
		if e.ReplyTo != "" {
			if name := displayNameOf(e.ReplyTo); name != "" {
				candidates = append(candidates, name)
			}
		}
	}
	if synthesized := synthesizeNameFromEmail(leadEmail); synthesized != "" {
		candidates = append(candidates, synthesized)
	}
	return candidates
}

// displayNameOf extracts the display-name part of "Name <addr>"; ""
// when the value is a bare address.
func displayNameOf(s string) string {
	open := strings.LastIndex(s, "<")
	if open <= 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(s[:open]), `"`)
}

// synthesizeNameFromEmail builds a human-looking name from the local
// part of an address: "jane.m-doe@x.com" becomes "Jane M Doe".
func synthesizeNameFromEmail(addr string) string {
	addr = NormalizeAddress(addr)
	at := strings.Index(addr, "@")
	if at <= 0 {
		return ""
	}
	local := addr[:at]

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	var words []string
	for _, p := range parts {
		if p == "" || isAllDigits(p) {
			continue
		}
		words = append(words, capitalize(p))
	}
	return strings.Join(words, " ")
}

// isGenericName reports whether a name carries no real information.
func isGenericName(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return true
	}
	_, generic := genericNames[name]
	return generic
}

// betterName reports whether candidate should replace current. A
// replacement happens only when the current name is missing or generic,
// or strictly worse: shorter and without separate words while the
// candidate has them.
func betterName(current, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || isGenericName(candidate) {
		return false
	}
	if isGenericName(current) {
		return true
	}
	current = strings.TrimSpace(current)

	currentWords := len(strings.Fields(current))
	candidateWords := len(strings.Fields(candidate))
	return currentWords < 2 && candidateWords > 1 && len(candidate) > len(current)
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
