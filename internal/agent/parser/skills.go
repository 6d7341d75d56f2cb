package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/feichai0017/certificate-processor/internal/agent/oracle"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

const skillsPrompt = `List the specific skills taught by this course title: %q. Return a JSON object with one key, "skills", holding an array of strings.`

// SkillExtractor decomposes a course title into skill phrases. It never
// fails: problems are logged and yield an empty list.
type SkillExtractor struct {
	oracle oracle.Oracle
	schema *jsonschema.Schema
	logger logger.Logger
}

func NewSkillExtractor(o oracle.Oracle, log logger.Logger) *SkillExtractor {
	return &SkillExtractor{
		oracle: o,
		schema: mustCompile("skills.json", skillsSchema()),
		logger: log.Named("skill_extractor"),
	}
}

type skillList struct {
	Skills []string `json:"skills"`
}

func (e *SkillExtractor) Extract(ctx context.Context, course string) []string {
	course = strings.TrimSpace(course)
	if course == "" {
		return []string{}
	}

	reply, err := e.oracle.Complete(ctx, fmt.Sprintf(skillsPrompt, course)+jsonOnly)
	if err != nil {
		logger.FromContext(ctx, e.logger).Warn("Skill extraction failed",
			logger.String("course", course),
			logger.Error(err),
		)
		return []string{}
	}

	var out skillList
	if err := decodeReply(reply, e.schema, nil, &out); err != nil {
		logger.FromContext(ctx, e.logger).Warn("Unusable skills reply",
			logger.String("course", course),
			logger.String("reply", truncate(reply, 512)),
			logger.Error(err),
		)
		return []string{}
	}

	skills := make([]string, 0, len(out.Skills))
	for _, s := range out.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}
