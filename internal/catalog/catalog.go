// Package catalog describes the intake sections that have been promoted from
// the legacy document to relational tables: which document keys belong to
// which section, the column each key lives in, and the typed empty default
// used when a field is absent everywhere.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var embedded []byte

// Kind is the storage type of a field.
type Kind string

const (
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindNumber Kind = "number"
)

type Field struct {
	Name    string `yaml:"name"`
	Column  string `yaml:"column"`
	Kind    Kind   `yaml:"kind"`
	Default any    `yaml:"default"`
}

// Zero returns the typed empty default of the field. A list default is a
// fresh slice on every call.
func (f Field) Zero() any {
	if f.Default != nil {
		switch v := f.Default.(type) {
		case int:
			return float64(v)
		default:
			return v
		}
	}
	switch f.Kind {
	case KindBool:
		return false
	case KindList:
		return []any{}
	case KindNumber:
		return float64(0)
	default:
		return ""
	}
}

type Section struct {
	Name   string  `yaml:"name"`
	Table  string  `yaml:"table"`
	Fields []Field `yaml:"fields"`

	byName map[string]int
}

// Field looks up a field by document key.
func (s *Section) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Columns returns the column names in declaration order.
func (s *Section) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Defaults returns a document holding the typed default of every field.
func (s *Section) Defaults() document.Document {
	d := make(document.Document, len(s.Fields))
	for _, f := range s.Fields {
		d[f.Name] = f.Zero()
	}
	return d
}

type Catalog struct {
	Sections []*Section `yaml:"sections"`

	byName  map[string]*Section
	byField map[string]string
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Load parses and validates a catalog. Table and column names must be plain
// lower-case identifiers because they are interpolated into SQL.
func Load(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	if err := yaml.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	c.byName = make(map[string]*Section, len(c.Sections))
	c.byField = make(map[string]string)

	for _, s := range c.Sections {
		if s.Name == "" || !identRe.MatchString(s.Table) {
			return fmt.Errorf("section %q: invalid name or table %q", s.Name, s.Table)
		}
		if _, dup := c.byName[s.Name]; dup {
			return fmt.Errorf("section %q declared twice", s.Name)
		}
		c.byName[s.Name] = s
		s.byName = make(map[string]int, len(s.Fields))

		for i, f := range s.Fields {
			if !identRe.MatchString(f.Column) || f.Column == "version" || f.Column == "intake_id" {
				return fmt.Errorf("section %q field %q: invalid column %q", s.Name, f.Name, f.Column)
			}
			switch f.Kind {
			case KindString, KindBool, KindList, KindNumber:
			default:
				return fmt.Errorf("section %q field %q: unknown kind %q", s.Name, f.Name, f.Kind)
			}
			if owner, dup := c.byField[f.Name]; dup {
				return fmt.Errorf("field %q declared in %q and %q", f.Name, owner, s.Name)
			}
			c.byField[f.Name] = s.Name
			s.byName[f.Name] = i
		}
	}
	return nil
}

// Default returns the catalog embedded in the binary. It panics if the
// embedded file is invalid, which is a build defect.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(embedded))
	if err != nil {
		panic(err)
	}
	return c
}

// Section looks up a section by name.
func (c *Catalog) Section(name string) (*Section, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Names returns the section names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// SectionOf reports which section owns the document key field.
func (c *Catalog) SectionOf(field string) (string, bool) {
	s, ok := c.byField[field]
	return s, ok
}

// Defaults is the empty form: the typed default of every catalog field.
func (c *Catalog) Defaults() document.Document {
	d := document.Document{}
	for _, s := range c.Sections {
		for k, v := range s.Defaults() {
			d[k] = v
		}
	}
	return d
}
