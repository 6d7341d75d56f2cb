package parser

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/feichai0017/certificate-processor/internal/agent/oracle"
)

// ErrMalformedReply means the oracle reply could not be coerced to the
// expected object, even after brace extraction.
var ErrMalformedReply = errors.New("malformed oracle reply")

// jsonOnly is appended to every prompt.
const jsonOnly = "\n\nPlease respond with valid JSON only."

// decodeReply strips code fences and decodes the reply as a JSON object that
// satisfies schema. If that fails it retries once on the first balanced
// {...} substring. normalize may canonicalize the decoded object before
// validation.
func decodeReply(reply string, schema *jsonschema.Schema, normalize func(map[string]any), dst any) error {
	cleaned := oracle.StripFences(reply)

	err := decodeStrict(cleaned, schema, normalize, dst)
	if err == nil {
		return nil
	}

	if obj, ok := oracle.FirstObject(cleaned); ok && obj != cleaned {
		if err2 := decodeStrict(obj, schema, normalize, dst); err2 == nil {
			return nil
		} else {
			err = err2
		}
	}
	return fmt.Errorf("%w: %v", ErrMalformedReply, err)
}

func decodeStrict(s string, schema *jsonschema.Schema, normalize func(map[string]any), dst any) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	if obj == nil {
		return errors.New("reply is not an object")
	}
	if normalize != nil {
		normalize(obj)
	}
	if err := schema.Validate(obj); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return json.Unmarshal(b, dst)
}
