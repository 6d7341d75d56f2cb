package converters

import (
	"strings"

	"github.com/feichai0017/certificate-processor/internal/models"
)

// ExtractedText is the plain-text result of OCR over one document.
type ExtractedText struct {
	Text       string  `json:"text"`
	Pages      int     `json:"pages"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Empty reports whether the text has no visible characters.
func (t *ExtractedText) Empty() bool {
	return t == nil || strings.TrimSpace(t.Text) == ""
}

// Preview returns the first n runes followed by "...".
func (t *ExtractedText) Preview(n int) string {
	if t == nil {
		return ""
	}
	r := []rune(t.Text)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}

// TextConverter flattens OCR chunks into one text body, pages joined by
// newlines in chunk order.
type TextConverter struct{}

func NewTextConverter() *TextConverter {
	return &TextConverter{}
}

func (c *TextConverter) Convert(chunks []models.DocumentChunk) *ExtractedText {
	out := &ExtractedText{Pages: len(chunks)}

	parts := make([]string, 0, len(chunks))
	var totalConfidence float64
	var scored int
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
		if conf, ok := chunk.Metadata["confidence"].(float64); ok {
			totalConfidence += conf
			scored++
		}
		if src, ok := chunk.Metadata["source"].(string); ok && out.Source == "" {
			out.Source = src
		}
	}

	out.Text = strings.Join(parts, "\n")
	if scored > 0 {
		out.Confidence = totalConfidence / float64(scored)
	}
	return out
}
