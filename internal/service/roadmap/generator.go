// Package roadmap suggests career tracks from a certificate's category and
// skills using a fixed rule table.
package roadmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/certificate-processor/internal/models"
)

// seedSkills is how many current skills each track carries.
const seedSkills = 4

type trackTemplate struct {
	title string
	steps []string
}

type rule struct {
	keywords []string
	tracks   []trackTemplate
}

// rules are tried in order; the first whose keywords match wins.
var rules = []rule{
	{
		keywords: []string{"security", "ethical", "cyber"},
		tracks: []trackTemplate{
			{
				title: "Cybersecurity Analyst",
				steps: []string{
					"network security fundamentals",
					"incident response and forensics",
					"security information and event management (siem)",
					"threat intelligence and analysis",
				},
			},
			{
				title: "Penetration Tester",
				steps: []string{
					"advanced penetration testing methodologies",
					"web application security testing",
					"network penetration testing",
					"mobile application security testing",
				},
			},
		},
	},
	{
		keywords: []string{"web", "development", "programming"},
		tracks: []trackTemplate{
			{
				title: "Full Stack Developer",
				steps: []string{
					"advanced javascript frameworks (react/vue/angular)",
					"backend api development (node.js/python/java)",
					"database design and optimization",
					"cloud deployment and devops",
				},
			},
			{
				title: "Frontend Developer",
				steps: []string{
					"advanced css and responsive design",
					"modern javascript frameworks",
					"web performance optimization",
					"progressive web applications (pwa)",
				},
			},
		},
	},
}

var genericSteps = []string{
	"industry best practices and standards",
	"project management and collaboration",
	"continuous learning and certification",
}

// Generator builds RoadmapRecords. It holds no state besides the clock.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorWithClock is used by tests to pin the generation time.
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate derives the roadmap for a certificate and the skills extracted
// from it.
func (g *Generator) Generate(studentID string, cert models.ParsedCertificate, skills []string) *models.RoadmapRecord {
	return models.NewRoadmapRecord(studentID, g.now(), Tracks(cert, skills))
}

// Tracks is the deterministic part of Generate.
func Tracks(cert models.ParsedCertificate, skills []string) []models.CareerTrack {
	existing := lowerFirst(skills, seedSkills)

	if isSkillBuildingCategory(cert.Category) {
		for _, r := range rules {
			if !anySkillContains(skills, r.keywords) {
				continue
			}
			tracks := make([]models.CareerTrack, 0, len(r.tracks))
			for _, t := range r.tracks {
				tracks = append(tracks, models.CareerTrack{
					CareerTitle:      t.title,
					ExistingSkills:   copyStrings(existing),
					SequencedRoadmap: copyStrings(t.steps),
				})
			}
			return tracks
		}
	}

	subject := strings.ToLower(cert.CourseTitle())
	if subject == "" {
		subject = "technical"
	}
	steps := make([]string, 0, len(genericSteps)+1)
	steps = append(steps, fmt.Sprintf("advanced %s concepts", subject))
	steps = append(steps, genericSteps...)

	category := cert.Category
	if category == "" {
		category = models.CategoryOthers
	}
	return []models.CareerTrack{{
		CareerTitle:      category + " Specialist",
		ExistingSkills:   existing,
		SequencedRoadmap: steps,
	}}
}

func isSkillBuildingCategory(category string) bool {
	return strings.EqualFold(category, "Course") || strings.EqualFold(category, "Workshop")
}

func anySkillContains(skills []string, keywords []string) bool {
	for _, s := range skills {
		s = strings.ToLower(s)
		for _, k := range keywords {
			if strings.Contains(s, k) {
				return true
			}
		}
	}
	return false
}

func lowerFirst(skills []string, n int) []string {
	if len(skills) < n {
		n = len(skills)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = strings.ToLower(skills[i])
	}
	return out
}

func copyStrings(s []string) []string {
	return append([]string(nil), s...)
}
