package extract

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"mailsync/internal/model"
)

// Result is the text extraction outcome.
type Result struct {
	Text           string
	OriginalLength int
	TextLength     int
}

// Extractor turns whichever body shape a fetcher delivered into plain
// text. HTML is stripped with a strict sanitizer policy rather than a
// regexp; mail HTML is too broken for anything less.
type Extractor struct {
	policy *bluemonday.Policy
}

func NewExtractor() *Extractor {
	return &Extractor{policy: bluemonday.StrictPolicy()}
}

// Extract resolves the body variant in a fixed order: plain text part,
// then text field of a nested pair, then HTML stripped to text. It never
// fails; an empty result is a valid outcome.
func (e *Extractor) Extract(raw *model.RawEmail) Result {
	body := raw.Body

	switch body.Kind {
	case model.BodyPlainText:
		return result(body.Text, body.Text)
	case model.BodyParts:
		if strings.TrimSpace(body.Text) != "" {
			return result(body.Text, body.Text)
		}
		if body.HTML != "" {
			return result(body.HTML, e.StripHTML(body.HTML))
		}
	case model.BodyHTML:
		return result(body.HTML, e.StripHTML(body.HTML))
	}

	return Result{}
}

// StripHTML removes all markup and decodes entities.
func (e *Extractor) StripHTML(s string) string {
	stripped := e.policy.Sanitize(s)
	return html.UnescapeString(stripped)
}

func result(original, text string) Result {
	return Result{
		Text:           text,
		OriginalLength: len(original),
		TextLength:     len(text),
	}
}
