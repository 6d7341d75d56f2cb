package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type fakeProcessor struct {
	kind   models.DocumentKind
	chunks []models.DocumentChunk
	err    error
	block  bool
	calls  int
}

func (p *fakeProcessor) CanProcess(kind models.DocumentKind) bool { return kind == p.kind }

func (p *fakeProcessor) Process(ctx context.Context, _ *models.DocumentHandle) ([]models.DocumentChunk, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.chunks, p.err
}

func (p *fakeProcessor) Close() error { return nil }

func TestExtractDispatchesByKind(t *testing.T) {
	img := &fakeProcessor{kind: models.KindImage, chunks: []models.DocumentChunk{{Content: "image text"}}}
	doc := &fakeProcessor{kind: models.KindPaginatedDocument, chunks: []models.DocumentChunk{{Content: "p1"}, {Content: "p2"}}}
	f := NewProcessorFactoryWith(logger.NewTestLogger(), time.Second, doc, img)

	text, err := f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindImage})
	require.NoError(t, err)
	assert.Equal(t, "image text", text.Text)

	text, err = f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindPaginatedDocument})
	require.NoError(t, err)
	assert.Equal(t, "p1\np2", text.Text)

	assert.Equal(t, 1, img.calls)
	assert.Equal(t, 1, doc.calls)
}

func TestExtractPropagatesEngineError(t *testing.T) {
	img := &fakeProcessor{kind: models.KindImage, err: errors.New("tesseract crashed")}
	f := NewProcessorFactoryWith(logger.NewTestLogger(), time.Second, img)

	_, err := f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindImage})
	assert.EqualError(t, err, "tesseract crashed")
}

func TestExtractUnknownKind(t *testing.T) {
	f := NewProcessorFactoryWith(logger.NewTestLogger(), time.Second)
	_, err := f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindImage})
	assert.Error(t, err)
}

func TestExtractTimeout(t *testing.T) {
	img := &fakeProcessor{kind: models.KindImage, block: true}
	f := NewProcessorFactoryWith(logger.NewTestLogger(), 20*time.Millisecond, img)

	_, err := f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindImage})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractEmptyTextIsNotAnError(t *testing.T) {
	img := &fakeProcessor{kind: models.KindImage, chunks: []models.DocumentChunk{{Content: "   "}}}
	f := NewProcessorFactoryWith(logger.NewTestLogger(), time.Second, img)

	text, err := f.Extract(context.Background(), &models.DocumentHandle{Kind: models.KindImage})
	require.NoError(t, err)
	assert.True(t, text.Empty())
}
