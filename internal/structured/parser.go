// Package structured decodes the oracle's free-text replies into typed
// records and applies the one-retry policy around oracle calls.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/ashureev/trainingdesk/internal/domain"
)

// ErrMalformedOutput is wrapped by every decode failure.
var ErrMalformedOutput = errors.New("malformed oracle output")

const identitySchema = `{
	"type": "object",
	"required": ["id", "name"],
	"properties": {
		"id":   {"type": "string"},
		"name": {"type": "string"}
	}
}`

const querySchema = `{
	"type": "object",
	"required": ["sql", "target", "error", "scope"],
	"properties": {
		"sql":    {"type": "string"},
		"target": {"enum": ["SELF", "OTHER"]},
		"error":  {"enum": ["OK", "FORBIDDEN"]},
		"scope":  {"enum": ["IN_SCOPE", "OUT_OF_SCOPE"]}
	}
}`

var (
	identityValidator = mustCompile(identitySchema)
	queryValidator    = mustCompile(querySchema)
)

func mustCompile(schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	s, err := compiler.Compile([]byte(schema))
	if err != nil {
		panic("structured: compile schema: " + err.Error())
	}
	return s
}

// ParseIdentity decodes an identity-extraction reply. A bare null means the
// message carried no identifying information.
func ParseIdentity(raw string) (domain.IdentityExtraction, error) {
	body := unwrap(raw)
	if body == "null" || body == "None" {
		return domain.IdentityExtraction{}, nil
	}

	var out domain.IdentityExtraction
	if err := decode(identityValidator, body, &out); err != nil {
		return domain.IdentityExtraction{}, err
	}
	out.ID = strings.TrimSpace(out.ID)
	out.Name = strings.TrimSpace(out.Name)
	return out, nil
}

// ParseQuerySpec decodes a query-specification reply.
func ParseQuerySpec(raw string) (domain.QuerySpec, error) {
	var out domain.QuerySpec
	if err := decode(queryValidator, unwrap(raw), &out); err != nil {
		return domain.QuerySpec{}, err
	}
	out.SQL = strings.TrimSpace(out.SQL)
	return out, nil
}

// ParseText accepts any non-empty reply.
func ParseText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}
	return text, nil
}

func decode(schema *jsonschema.Schema, body string, v any) error {
	if body == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedOutput)
	}
	data := []byte(body)
	if !json.Valid(data) {
		return fmt.Errorf("%w: not valid JSON", ErrMalformedOutput)
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		return fmt.Errorf("%w: schema validation failed: %v", ErrMalformedOutput, result.Errors)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// unwrap trims whitespace and one surrounding markdown code fence.
func unwrap(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop an info string such as "json".
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
