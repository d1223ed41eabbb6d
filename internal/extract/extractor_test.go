package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mailsync/internal/model"
)

func TestExtractPlainText(t *testing.T) {
	e := NewExtractor()
	res := e.Extract(&model.RawEmail{Body: model.EmailBody{Kind: model.BodyPlainText, Text: "hello there"}})
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, 11, res.TextLength)
}

func TestExtractPartsPrefersText(t *testing.T) {
	e := NewExtractor()
	res := e.Extract(&model.RawEmail{Body: model.EmailBody{
		Kind: model.BodyParts,
		Text: "plain version",
		HTML: "<p>html version</p>",
	}})
	assert.Equal(t, "plain version", res.Text)
}

func TestExtractPartsFallsBackToHTML(t *testing.T) {
	e := NewExtractor()
	res := e.Extract(&model.RawEmail{Body: model.EmailBody{
		Kind: model.BodyParts,
		Text: "   ",
		HTML: "<p>html only</p>",
	}})
	assert.Equal(t, "html only", res.Text)
}

func TestExtractStripsMarkupAndEntities(t *testing.T) {
	e := NewExtractor()
	res := e.Extract(&model.RawEmail{Body: model.EmailBody{
		Kind: model.BodyHTML,
		HTML: `<div><script>alert(1)</script>Fish &amp; Chips <b>tonight</b></div>`,
	}})
	assert.NotContains(t, res.Text, "<")
	assert.NotContains(t, res.Text, "alert")
	assert.Contains(t, res.Text, "Fish & Chips")
	assert.Contains(t, res.Text, "tonight")
}

func TestExtractEmptyBody(t *testing.T) {
	e := NewExtractor()
	res := e.Extract(&model.RawEmail{})
	assert.Empty(t, res.Text)
	assert.Zero(t, res.TextLength)
}
