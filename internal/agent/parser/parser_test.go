package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type fakeOracle struct {
	reply   string
	err     error
	prompts []string
}

func (o *fakeOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.prompts = append(o.prompts, prompt)
	return o.reply, o.err
}

func (o *fakeOracle) Close() error { return nil }

func TestParseCertificate(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  models.ParsedCertificate
	}{
		{
			name:  "plain",
			reply: `{"name":"Jane Doe","course":"Ethical Hacking","issuer":"EC-Council","date":"2024-03-01","category":"Course"}`,
			want:  models.ParsedCertificate{Name: "Jane Doe", Course: "Ethical Hacking", Issuer: "EC-Council", Date: "2024-03-01", Category: "Course"},
		},
		{
			name:  "fenced",
			reply: "```json\n{\"name\":\"Jane\",\"course\":\"Web Dev\",\"issuer\":\"X\",\"date\":\"2023\",\"category\":\"Workshop\"}\n```",
			want:  models.ParsedCertificate{Name: "Jane", Course: "Web Dev", Issuer: "X", Date: "2023", Category: "Workshop"},
		},
		{
			name:  "prose around object",
			reply: `Here is the result: {"name":"Jane","course":"Not found","issuer":"IEEE","date":"Not found","category":"Conference"} Let me know!`,
			want:  models.ParsedCertificate{Name: "Jane", Course: models.NotFound, Issuer: "IEEE", Date: models.NotFound, Category: "Conference"},
		},
		{
			name:  "missing fields default",
			reply: `{"name":"Jane","category":"Others"}`,
			want:  models.ParsedCertificate{Name: "Jane", Course: models.NotFound, Issuer: models.NotFound, Date: models.NotFound, Category: "Others"},
		},
		{
			name:  "null date",
			reply: `{"name":"Jane","course":"Go","issuer":null,"date":null,"category":"Course"}`,
			want:  models.ParsedCertificate{Name: "Jane", Course: "Go", Issuer: models.NotFound, Date: models.NotFound, Category: "Course"},
		},
		{
			name:  "category case folded",
			reply: `{"name":"Jane","course":"Go","issuer":"Y","date":"2022","category":"communityservice"}`,
			want:  models.ParsedCertificate{Name: "Jane", Course: "Go", Issuer: "Y", Date: "2022", Category: "CommunityService"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{reply: tt.reply}
			p := NewCertificateParser(o, logger.NewTestLogger())

			got, err := p.Parse(context.Background(), "certificate text")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
			assert.Len(t, o.prompts, 1)
		})
	}
}

func TestParseCertificateRejects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I could not read this certificate."},
		{"unknown category", `{"name":"Jane","course":"Go","issuer":"Y","date":"2022","category":"Seminar"}`},
		{"missing category", `{"name":"Jane","course":"Go","issuer":"Y","date":"2022"}`},
		{"wrong type", `{"name":["Jane"],"category":"Course"}`},
		{"array of strings", `["Course"]`},
		{"truncated", "```json\n{\"name\":\"Jane\",\"category\":\"Cou"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCertificateParser(&fakeOracle{reply: tt.reply}, logger.NewTestLogger())
			_, err := p.Parse(context.Background(), "text")
			assert.ErrorIs(t, err, ErrMalformedReply)
		})
	}
}

func TestParseCertificateOracleError(t *testing.T) {
	p := NewCertificateParser(&fakeOracle{err: errors.New("quota exceeded")}, logger.NewTestLogger())
	_, err := p.Parse(context.Background(), "text")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedReply)
}

func TestCertificatePromptListsCategories(t *testing.T) {
	o := &fakeOracle{reply: `{"category":"Others"}`}
	_, err := NewCertificateParser(o, logger.NewTestLogger()).Parse(context.Background(), "SOME OCR TEXT")
	require.NoError(t, err)

	prompt := o.prompts[0]
	for _, c := range models.Categories {
		assert.Contains(t, prompt, `"`+c+`"`)
	}
	assert.Contains(t, prompt, "SOME OCR TEXT")
	assert.Contains(t, prompt, models.NotFound)
	assert.Contains(t, prompt, "valid JSON only")
}

func TestSkillExtractor(t *testing.T) {
	tests := []struct {
		name   string
		course string
		reply  string
		err    error
		want   []string
		calls  int
	}{
		{"ok", "Ethical Hacking", `{"skills":["Network Scanning","Cyber Security"]}`, nil, []string{"Network Scanning", "Cyber Security"}, 1},
		{"fenced", "Go", "```json\n{\"skills\":[\"Go\",\" \",\"Concurrency\"]}\n```", nil, []string{"Go", "Concurrency"}, 1},
		{"empty course", "  ", "", nil, []string{}, 0},
		{"oracle error", "Go", "", errors.New("timeout"), []string{}, 1},
		{"malformed", "Go", "skills: Go", nil, []string{}, 1},
		{"wrong shape", "Go", `{"skills":"Go"}`, nil, []string{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &fakeOracle{reply: tt.reply, err: tt.err}
			got := NewSkillExtractor(o, logger.NewTestLogger()).Extract(context.Background(), tt.course)
			assert.Equal(t, tt.want, got)
			assert.Len(t, o.prompts, tt.calls)
		})
	}
}
