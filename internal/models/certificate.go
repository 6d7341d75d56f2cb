package models

import "strings"

// NotFound is the sentinel value for fields the oracle could not determine.
const NotFound = "Not found"

// CategoryOthers is the fallback classification.
const CategoryOthers = "Others"

// Categories is the fixed classification set, in prompt order.
var Categories = []string{
	"Workshop",
	"Conference",
	"Hackathon",
	"Internship",
	"Course",
	"Competition",
	"CommunityService",
	"Leadership",
}

// IsValidCategory reports whether c is one of Categories or CategoryOthers.
// Matching is exact.
func IsValidCategory(c string) bool {
	if c == CategoryOthers {
		return true
	}
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// AllowedCategories returns Categories plus the fallback.
func AllowedCategories() []string {
	out := make([]string, 0, len(Categories)+1)
	out = append(out, Categories...)
	return append(out, CategoryOthers)
}

// ParsedCertificate is the structured view of a certificate's text.
type ParsedCertificate struct {
	Name     string `json:"name" bson:"name"`
	Course   string `json:"course" bson:"course"`
	Issuer   string `json:"issuer" bson:"issuer"`
	Date     string `json:"date" bson:"date"`
	Category string `json:"category" bson:"category"`
}

// CourseTitle returns the course, or "" when the oracle did not find one.
func (p ParsedCertificate) CourseTitle() string {
	c := strings.TrimSpace(p.Course)
	if c == "" || c == NotFound {
		return ""
	}
	return c
}

// CertificateRecord is one entry of a student's certificate history.
type CertificateRecord struct {
	ParsedCertificate `bson:",inline"`
	Skills            []string `json:"skills" bson:"skills"`
	StudentID         string   `json:"student_id" bson:"student_id"`
	DocumentURL       string   `json:"document_url,omitempty" bson:"document_url,omitempty"`
}
