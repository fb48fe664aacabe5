package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema used to validate model output before it
// is trusted.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(name, raw string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader([]byte(raw))); err != nil {
		return nil, eris.Wrapf(err, "llm: load schema %s", name)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: compile schema %s", name)
	}
	return &Schema{name: name, schema: s}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name, raw string) *Schema {
	s, err := CompileSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeJSON extracts a JSON document from model output (tolerating code
// fences and surrounding prose), validates it against schema when given, and
// unmarshals it into out.
func DecodeJSON(content string, schema *Schema, out any) error {
	raw, err := extractJSON(content)
	if err != nil {
		return err
	}
	if schema != nil {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return eris.Wrap(err, "llm: decode for validation")
		}
		if err := schema.schema.Validate(doc); err != nil {
			return eris.Wrapf(err, "llm: response does not match %s schema", schema.name)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrap(err, "llm: decode response")
	}
	return nil
}

// CompleteJSON asks c for a JSON answer and decodes it into out.
func CompleteJSON(ctx context.Context, c Completer, req Request, schema *Schema, out any) error {
	req.JSON = true
	text, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(text, schema, out)
}

func extractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyResponse
	}

	candidates := []string{content}
	if s := stripCodeFences(content); s != "" {
		candidates = append(candidates, s)
	}
	if s := jsonCandidate(content); s != "" {
		candidates = append(candidates, s)
	}
	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return []byte(c), nil
		}
	}
	return nil, eris.New("llm: no JSON document in response")
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// jsonCandidate slices from the first opening brace or bracket to the last
// matching closer.
func jsonCandidate(content string) string {
	obj := strings.Index(content, "{")
	arr := strings.Index(content, "[")
	start, closer := obj, "}"
	if obj < 0 || (arr >= 0 && arr < obj) {
		start, closer = arr, "]"
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return content[start : end+1]
}
