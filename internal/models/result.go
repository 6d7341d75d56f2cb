package models

import "strings"

// ResultStatus is the outcome of a submission.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// ProcessingResult is returned by every submission entry point.
type ProcessingResult struct {
	Status               ResultStatus        `json:"status"`
	Message              string              `json:"message,omitempty"`
	ParsedCertificate    *CertificateRecord  `json:"parsed_data,omitempty"`
	UpdatedDetailedData  []CertificateRecord `json:"updated_detailed_data,omitempty"`
	UpdatedSkillData     []string            `json:"updated_skills_data,omitempty"`
	Roadmap              *RoadmapRecord      `json:"roadmap,omitempty"`
	DocumentURL          string              `json:"document_url,omitempty"`
	ExtractedTextPreview string              `json:"extracted_text_preview,omitempty"`
	ErrorCode            string              `json:"error_code,omitempty"`
	ErrorMessage         string              `json:"error,omitempty"`
}

// Profile is the full content of the detailed-data and skill-data stores.
type Profile struct {
	DetailedData map[string][]CertificateRecord `json:"detailed_data"`
	SkillData    map[string][]string            `json:"skills_data"`
}

// UnionSkills returns existing followed by every incoming skill not already
// present ignoring case. The first casing seen wins.
func UnionSkills(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, s := range list {
			key := strings.ToLower(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
