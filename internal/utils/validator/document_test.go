package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/testutil"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestValidateFileImage(t *testing.T) {
	v := NewDocumentValidator(nil, nil)
	p := writeTemp(t, "cert.png", testutil.PNG(64, 64))

	res, err := v.ValidateFile(p, "cert.png")
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Error())
	assert.Equal(t, models.KindImage, res.FileInfo.Kind)
	assert.Equal(t, "image/png", res.FileInfo.MimeType)
	assert.NotEmpty(t, res.FileInfo.Hash)
}

func TestValidateFilePDF(t *testing.T) {
	v := NewDocumentValidator(nil, nil)
	p := writeTemp(t, "cert.pdf", testutil.PDF(2))

	res, err := v.ValidateFile(p, "cert.pdf")
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Error())
	assert.Equal(t, models.KindPaginatedDocument, res.FileInfo.Kind)
	assert.Equal(t, 2, res.FileInfo.Pages)
}

func TestValidateFileInfersExtensionFromContent(t *testing.T) {
	v := NewDocumentValidator(nil, nil)
	p := writeTemp(t, "blob", testutil.PDF(1))

	res, err := v.ValidateFile(p, "blob")
	require.NoError(t, err)
	assert.Equal(t, ".pdf", res.FileInfo.Extension)
	assert.Equal(t, models.KindPaginatedDocument, res.FileInfo.Kind)
}

func TestValidateFileRejections(t *testing.T) {
	v := NewDocumentValidator(nil, &ValidatorConfig{MaxFileSize: 1 << 20, MaxPageCount: 1})

	tests := []struct {
		name     string
		filename string
		data     []byte
		code     string
	}{
		{"empty", "a.png", []byte{}, "EMPTY_FILE"},
		{"extension", "a.exe", []byte("MZ binary"), "INVALID_FILE_TYPE"},
		{"tiny image", "a.png", testutil.PNG(4, 4), "IMAGE_TOO_SMALL"},
		{"broken pdf", "a.pdf", []byte("%PDF-1.4 garbage"), "INVALID_PDF"},
		{"page cap", "a.pdf", testutil.PDF(3), "TOO_MANY_PAGES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeTemp(t, tt.filename, tt.data)
			res, err := v.ValidateFile(p, tt.filename)
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, tt.code, res.Errors[0].Code)
		})
	}
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, models.KindPaginatedDocument, KindFor(".PDF", ""))
	assert.Equal(t, models.KindPaginatedDocument, KindFor("", "application/pdf"))
	assert.Equal(t, models.KindImage, KindFor(".jpg", "image/jpeg"))
	assert.Equal(t, models.KindPaginatedDocument, KindFor(".png", "application/pdf"))
	assert.Equal(t, models.KindImage, KindFor(".pdf", "image/png"))
	assert.Equal(t, models.KindPaginatedDocument, KindFor(".pdf", "application/octet-stream"))
}

func TestValidateFilePDFWithImageExtension(t *testing.T) {
	v := NewDocumentValidator(nil, nil)
	p := writeTemp(t, "cert.jpg", testutil.PDF(1))

	res, err := v.ValidateFile(p, "cert.jpg")
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Error())
	assert.Equal(t, models.KindPaginatedDocument, res.FileInfo.Kind)
	assert.Equal(t, 1, res.FileInfo.Pages)
}
