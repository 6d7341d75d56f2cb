package image

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/testutil"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type fakeTextract struct {
	blocks []types.Block
	got    []byte
}

func (f *fakeTextract) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.got = in.Document.Bytes
	return &textract.DetectDocumentTextOutput{Blocks: f.blocks}, nil
}

func TestTextractProcessorKeepsConfidentLines(t *testing.T) {
	data := testutil.PNG(32, 32)
	path := filepath.Join(t.TempDir(), "cert.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	client := &fakeTextract{blocks: []types.Block{
		{BlockType: types.BlockTypePage},
		{BlockType: types.BlockTypeLine, Text: aws.String("Certificate of Completion"), Confidence: aws.Float32(99)},
		{BlockType: types.BlockTypeLine, Text: aws.String("~~noise~~"), Confidence: aws.Float32(12)},
		{BlockType: types.BlockTypeWord, Text: aws.String("Certificate"), Confidence: aws.Float32(99)},
		{BlockType: types.BlockTypeLine, Text: aws.String("Python for Everybody"), Confidence: aws.Float32(95)},
	}}
	p := NewTextractProcessorWithClient(client, &TextractConfig{MinConfidence: 80}, logger.NewTestLogger())

	chunks, err := p.Process(context.Background(), &models.DocumentHandle{Path: path, Kind: models.KindImage})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Certificate of Completion\nPython for Everybody", chunks[0].Content)
	assert.Equal(t, data, client.got)
	assert.InDelta(t, 97.0, chunks[0].Metadata["confidence"], 0.01)
}
