package converters

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/certificate-processor/internal/models"
)

func TestConvertJoinsPagesInOrder(t *testing.T) {
	chunks := []models.DocumentChunk{
		{Content: "page one", Metadata: map[string]interface{}{"source": "ocrmypdf", "pageNumber": 1}},
		{Content: "page two", Metadata: map[string]interface{}{"source": "ocrmypdf", "pageNumber": 2}},
	}

	out := NewTextConverter().Convert(chunks)
	assert.Equal(t, "page one\npage two", out.Text)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, "ocrmypdf", out.Source)
	assert.Zero(t, out.Confidence)
}

func TestConvertAveragesConfidence(t *testing.T) {
	chunks := []models.DocumentChunk{
		{Content: "a", Metadata: map[string]interface{}{"confidence": 90.0}},
		{Content: "b", Metadata: map[string]interface{}{"confidence": 70.0}},
	}
	assert.InDelta(t, 80.0, NewTextConverter().Convert(chunks).Confidence, 0.001)
}

func TestEmpty(t *testing.T) {
	c := NewTextConverter()
	assert.True(t, c.Convert(nil).Empty())
	assert.True(t, c.Convert([]models.DocumentChunk{{Content: " \n\t "}}).Empty())
	assert.False(t, c.Convert([]models.DocumentChunk{{Content: "x"}}).Empty())
}

func TestPreview(t *testing.T) {
	long := &ExtractedText{Text: strings.Repeat("é", 250)}
	assert.Equal(t, strings.Repeat("é", 200)+"...", long.Preview(200))

	short := &ExtractedText{Text: "short"}
	assert.Equal(t, "short...", short.Preview(200))
}
