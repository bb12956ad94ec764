// Package overlay builds the Merged View of an intake: per field, a non-null
// relational column wins over a non-null document key, which wins over the
// catalog default. The functions here are pure.
package overlay

import (
	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

// Source names where a merged value came from.
type Source string

const (
	SourceRecord   Source = "record"
	SourceDocument Source = "document"
	SourceDefault  Source = "default"
)

// View is the read-only projection of one section.
type View struct {
	IntakeID string
	Section  string
	Fields   map[string]any
	Sources  map[string]Source
	Status   catalog.Status
	// Version is the section record version, 0 when no record exists.
	Version int64
}

// Merge overlays rec and status onto doc for one section. rec, doc and
// status may each be nil.
func Merge(section *catalog.Section, rec *models.SectionRecord, doc document.Document, status *models.SectionStatus) *View {
	v := &View{
		Section: section.Name,
		Fields:  make(map[string]any, len(section.Fields)),
		Sources: make(map[string]Source, len(section.Fields)),
		Status:  StatusOf(section.Name, doc, status),
	}
	if rec != nil {
		v.IntakeID = rec.IntakeID
		v.Version = rec.Version
	}

	for _, f := range section.Fields {
		if rec != nil {
			if val, ok := rec.Values[f.Name]; ok && val != nil {
				v.Fields[f.Name] = val
				v.Sources[f.Name] = SourceRecord
				continue
			}
		}
		if doc.Has(f.Name) {
			v.Fields[f.Name] = document.CloneValue(doc[f.Name])
			v.Sources[f.Name] = SourceDocument
			continue
		}
		v.Fields[f.Name] = f.Zero()
		v.Sources[f.Name] = SourceDefault
	}
	return v
}

// StatusOf resolves the section status: status row, then the legacy
// document map, then not_started.
func StatusOf(section string, doc document.Document, status *models.SectionStatus) catalog.Status {
	if status != nil && status.Status.Valid() {
		return status.Status
	}
	if m, ok := doc[common.SectionStatusKey].(map[string]any); ok {
		if s, ok := m[section].(string); ok && catalog.Status(s).Valid() {
			return catalog.Status(s)
		}
	}
	return catalog.StatusNotStarted
}

// MergeAll overlays every catalog section onto doc and returns the merged
// document with a resolved sectionStatus map. Keys outside the catalog are
// carried through unchanged.
func MergeAll(c *catalog.Catalog, doc document.Document, records map[string]*models.SectionRecord, statuses map[string]*models.SectionStatus) document.Document {
	out := doc.Clone()

	resolved := make(map[string]any, len(c.Sections))
	for _, s := range c.Sections {
		v := Merge(s, records[s.Name], doc, statuses[s.Name])
		for name, val := range v.Fields {
			out[name] = val
		}
		resolved[s.Name] = string(v.Status)
	}
	out[common.SectionStatusKey] = resolved
	return out
}
