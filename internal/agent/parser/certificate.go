// Package parser turns OCR text into structured certificate fields and
// course titles into skill lists using the oracle.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/feichai0017/certificate-processor/internal/agent/oracle"
	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

const certificatePrompt = `Read the text below, taken from a certificate, and do two things:
1. Extract the holder's full name, the course or achievement title, the issuing organization and the issue date.
2. Classify the document as exactly ONE of these categories: %s. If none fits, use "Others".

Return one JSON object with the keys "name", "course", "issuer", "date" and "category".
Use the value "Not found" for any detail that is not present.

Text:
---
%s
---`

// CertificateParser extracts a ParsedCertificate from OCR text.
type CertificateParser struct {
	oracle oracle.Oracle
	schema *jsonschema.Schema
	logger logger.Logger
}

func NewCertificateParser(o oracle.Oracle, log logger.Logger) *CertificateParser {
	return &CertificateParser{
		oracle: o,
		schema: mustCompile("certificate.json", certificateSchema()),
		logger: log.Named("certificate_parser"),
	}
}

// Parse makes one oracle call. Oracle errors are returned as is; replies that
// cannot be decoded wrap ErrMalformedReply.
func (p *CertificateParser) Parse(ctx context.Context, text string) (*models.ParsedCertificate, error) {
	reply, err := p.oracle.Complete(ctx, buildCertificatePrompt(text))
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}

	var parsed models.ParsedCertificate
	if err := decodeReply(reply, p.schema, normalizeCertificate, &parsed); err != nil {
		p.logger.Warn("Unusable certificate reply",
			logger.String("reply", truncate(reply, 512)),
			logger.Error(err),
		)
		return nil, err
	}

	fillNotFound(&parsed)
	return &parsed, nil
}

func buildCertificatePrompt(text string) string {
	categories, _ := json.Marshal(models.Categories)
	return fmt.Sprintf(certificatePrompt, categories, text) + jsonOnly
}

// normalizeCertificate maps a category that differs only in case or
// surrounding space onto its canonical spelling.
func normalizeCertificate(obj map[string]any) {
	c, ok := obj["category"].(string)
	if !ok {
		return
	}
	c = strings.TrimSpace(c)
	for _, allowed := range models.AllowedCategories() {
		if strings.EqualFold(c, allowed) {
			obj["category"] = allowed
			return
		}
	}
}

func fillNotFound(p *models.ParsedCertificate) {
	for _, f := range []*string{&p.Name, &p.Course, &p.Issuer, &p.Date} {
		*f = strings.TrimSpace(*f)
		if *f == "" {
			*f = models.NotFound
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
