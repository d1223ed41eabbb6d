package sync

import "strings"

// mojibake repairs for UTF-8 text that was decoded as Windows-1252 once
// too often. The table is closed on purpose: each entry is a two-byte
// UTF-8 sequence as it renders after the bad round-trip, so replacements
// are unambiguous. Longer sequences come first; the replacer matches in
// argument order.
var mojibakeReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€œ", "“",
	"â€", "”",
	"â€“", "–",
	"â€”", "—",
	"â€¦", "…",
	"Ã¡", "á",
	"Ã©", "é",
	"Ã­", "í",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã±", "ñ",
	"Ã¼", "ü",
	"Ã¨", "è",
	"Ã¬", "ì",
	"Ã²", "ò",
	"Ã¹", "ù",
	"Ã¢", "â",
	"Ãª", "ê",
	"Ã®", "î",
	"Ã´", "ô",
	"Ã»", "û",
	"Ã§", "ç",
	"Ã£", "ã",
	"Ãµ", "õ",
	"Ã¤", "ä",
	"Ã«", "ë",
	"Ã¯", "ï",
	"Ã¶", "ö",
	"Ã‰", "É",
	"Â°", "°",
	"Â©", "©",
	"Â®", "®",
	"Â ", " ",
)

// NormalizeText repairs encoding damage, strips control characters and
// collapses whitespace runs to single spaces. Deterministic and total;
// it runs before every text comparison and before persisting any
// subject or body, so two copies of the same email cannot diverge on
// encoding artifacts alone.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	s = mojibakeReplacer.Replace(s)

	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return ' '
		}
		return r
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSubject is the comparison form of a subject line.
func NormalizeSubject(s string) string {
	return strings.ToLower(NormalizeText(s))
}

// NormalizeAddress is the comparison form of an email address. It lifts
// the address out of a "Display Name <addr>" form when present.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if close := strings.Index(s[open:], ">"); close > 0 {
			s = s[open+1 : open+close]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}
