package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://intakekeeper.local/schemas/"

// Validator checks patches against JSON schemas generated from the catalog.
// Draft patches may carry keys outside the catalog since the document is
// open; section patches may only name fields of their section.
type Validator struct {
	draft    *jsonschema.Schema
	sections map[string]*jsonschema.Schema
}

func fieldSchema(f Field) map[string]any {
	switch f.Kind {
	case KindBool:
		return map[string]any{"type": []string{"boolean", "null"}}
	case KindNumber:
		return map[string]any{"type": []string{"number", "null"}}
	case KindList:
		return map[string]any{"type": []string{"array", "null"}}
	default:
		return map[string]any{"type": []string{"string", "null"}}
	}
}

func statusEnum() []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func compile(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := schemaBaseURL + name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("schema %s load failed: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
	}
	return compiled, nil
}

// NewValidator compiles the draft schema and one schema per section.
func NewValidator(c *Catalog) (*Validator, error) {
	v := &Validator{sections: make(map[string]*jsonschema.Schema, len(c.Sections))}

	draftProps := map[string]any{
		common.SectionStatusKey: map[string]any{
			"type":                 []string{"object", "null"},
			"additionalProperties": map[string]any{"enum": statusEnum()},
		},
	}

	for _, s := range c.Sections {
		props := make(map[string]any, len(s.Fields))
		for _, f := range s.Fields {
			props[f.Name] = fieldSchema(f)
			draftProps[f.Name] = fieldSchema(f)
		}
		compiled, err := compile("section-"+s.Name, map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
			"minProperties":        1,
		})
		if err != nil {
			return nil, err
		}
		v.sections[s.Name] = compiled
	}

	draft, err := compile("draft", map[string]any{
		"type":                 "object",
		"properties":           draftProps,
		"additionalProperties": true,
	})
	if err != nil {
		return nil, err
	}
	v.draft = draft

	return v, nil
}

func validate(schema *jsonschema.Schema, patch document.Document) error {
	normalized, err := document.Normalize(patch)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := schema.Validate(map[string]any(normalized)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}

// ValidateDraft checks a whole-document patch.
func (v *Validator) ValidateDraft(patch document.Document) error {
	return validate(v.draft, patch)
}

// ValidateSection checks a patch addressed to one section.
func (v *Validator) ValidateSection(section string, patch document.Document) error {
	schema, ok := v.sections[section]
	if !ok {
		return fmt.Errorf("%w: unknown section %q", common.ErrValidation, section)
	}
	return validate(schema, patch)
}
