// internal/utils/validator/document.go
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// DocumentValidator checks an acquired document and infers its kind.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // bytes
	AllowedTypes map[string][]string // extension -> accepted MIME types
	MinDimension int                 // minimum image edge in pixels
	MaxPageCount int                 // 0 = unlimited
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string              `json:"filename"`
	Size      int64               `json:"size"`
	MimeType  string              `json:"mimeType"`
	Extension string              `json:"extension"`
	Hash      string              `json:"hash"`
	Kind      models.DocumentKind `json:"kind"`
	Pages     int                 `json:"pages,omitempty"`
}

// Error joins the validation errors into one message.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// DefaultAllowedTypes maps accepted extensions to MIME types.
func DefaultAllowedTypes() map[string][]string {
	return map[string][]string{
		".pdf":  {"application/pdf"},
		".jpg":  {"image/jpeg"},
		".jpeg": {"image/jpeg"},
		".png":  {"image/png"},
		".tiff": {"image/tiff"},
		".tif":  {"image/tiff"},
		".bmp":  {"image/bmp"},
		".webp": {"image/webp"},
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{}
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = 20 * 1024 * 1024
	}
	if len(config.AllowedTypes) == 0 {
		config.AllowedTypes = DefaultAllowedTypes()
	}
	if config.MinDimension <= 0 {
		config.MinDimension = 32
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// ExtensionFor returns the canonical extension for a MIME type, or "".
func ExtensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "pdf"):
		return ".pdf"
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "tiff"):
		return ".tiff"
	case strings.Contains(mimeType, "image"):
		return ".jpg"
	}
	return ""
}

// KindFor infers the document kind. Sniffed content wins over the declared
// extension; the extension decides only when the MIME type is inconclusive.
func KindFor(ext, mimeType string) models.DocumentKind {
	switch {
	case strings.Contains(mimeType, "pdf"):
		return models.KindPaginatedDocument
	case strings.HasPrefix(mimeType, "image/"):
		return models.KindImage
	case strings.EqualFold(ext, ".pdf"):
		return models.KindPaginatedDocument
	}
	return models.KindImage
}

// ValidateFile validates the document stored at path. filename is the
// client-facing name used for extension checks.
func (v *DocumentValidator) ValidateFile(path, filename string) (*ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      st.Size(),
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	hash, err := v.calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mt.String()
	if result.FileInfo.Extension == "" {
		result.FileInfo.Extension = ExtensionFor(result.FileInfo.MimeType)
	}
	result.FileInfo.Kind = KindFor(result.FileInfo.Extension, result.FileInfo.MimeType)

	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
	}

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		// a mismatched declared extension is tolerated, OCR decides
		v.logger.Warn("Declared extension does not match content",
			logger.String("filename", filename),
			logger.String("extension", result.FileInfo.Extension),
			logger.String("mimeType", result.FileInfo.MimeType),
		)
	}

	if result.IsValid {
		if errs := v.performTypeSpecificValidation(path, &result.FileInfo); len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	return result, nil
}

func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	if fileInfo.Size == 0 {
		errors = append(errors, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}

	if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %q is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errors
}

func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	allowedMimes, ok := v.config.AllowedTypes[fileInfo.Extension]
	if !ok {
		return []ValidationError{{
			Code:    "INVALID_FILE_TYPE",
			Message: "File type not allowed",
			Field:   "mimeType",
		}}
	}

	for _, m := range allowedMimes {
		if m == fileInfo.MimeType {
			return nil
		}
	}

	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", fileInfo.MimeType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

func (v *DocumentValidator) performTypeSpecificValidation(path string, fileInfo *FileInfo) []ValidationError {
	switch fileInfo.Kind {
	case models.KindPaginatedDocument:
		return v.validatePDF(path, fileInfo)
	default:
		return v.validateImage(path)
	}
}

func (v *DocumentValidator) calculateHash(file io.ReadSeeker) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (v *DocumentValidator) validatePDF(path string, fileInfo *FileInfo) []ValidationError {
	f, r, err := pdf.Open(path)
	if err != nil {
		return []ValidationError{{
			Code:    "INVALID_PDF",
			Message: fmt.Sprintf("Unreadable PDF: %v", err),
			Field:   "content",
		}}
	}
	defer f.Close()

	fileInfo.Pages = r.NumPage()
	if fileInfo.Pages == 0 {
		return []ValidationError{{
			Code:    "EMPTY_PDF",
			Message: "PDF has no pages",
			Field:   "content",
		}}
	}
	if v.config.MaxPageCount > 0 && fileInfo.Pages > v.config.MaxPageCount {
		return []ValidationError{{
			Code:    "TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, limit is %d", fileInfo.Pages, v.config.MaxPageCount),
			Field:   "content",
		}}
	}
	return nil
}

func (v *DocumentValidator) validateImage(path string) []ValidationError {
	f, err := os.Open(path)
	if err != nil {
		return []ValidationError{{Code: "UNREADABLE", Message: err.Error(), Field: "content"}}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		// formats without a registered decoder (tiff, bmp, webp) are left to the OCR engine
		return nil
	}
	if cfg.Width < v.config.MinDimension || cfg.Height < v.config.MinDimension {
		return []ValidationError{{
			Code:    "IMAGE_TOO_SMALL",
			Message: fmt.Sprintf("Image is %dx%d, minimum edge is %d", cfg.Width, cfg.Height, v.config.MinDimension),
			Field:   "dimensions",
		}}
	}
	return nil
}
