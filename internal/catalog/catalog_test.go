package catalog

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedSections(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"barriers", "consent", "employment", "identity", "medical", "observations"}, c.Names())

	s, ok := c.Section("medical")
	require.True(t, ok)
	assert.Equal(t, "intake_medical", s.Table)

	f, ok := s.Field("medicalConditionCurrent")
	require.True(t, ok)
	assert.Equal(t, "medical_condition_current", f.Column)
	assert.Equal(t, KindBool, f.Kind)

	owner, ok := c.SectionOf("clientName")
	require.True(t, ok)
	assert.Equal(t, "identity", owner)

	_, ok = c.SectionOf("favouriteColour")
	assert.False(t, ok)
}

func TestDefaults_AreTyped(t *testing.T) {
	d := Default().Defaults()

	assert.Equal(t, "", d["clientName"])
	assert.Equal(t, false, d["medicalConditionCurrent"])
	assert.Equal(t, []any{}, d["tobaccoProducts"])
	assert.Equal(t, float64(0), d["readinessScale"])
	for _, k := range d.Keys() {
		assert.NotNil(t, d[k], k)
	}
}

func TestField_ZeroListIsFresh(t *testing.T) {
	f := Field{Name: "barriers", Kind: KindList}
	a := f.Zero().([]any)
	a = append(a, "x")
	assert.Len(t, a, 1)
	assert.Empty(t, f.Zero())
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad table": `
sections:
  - name: identity
    table: "intake; DROP"
    fields: []`,
		"bad kind": `
sections:
  - name: identity
    table: intake_identity
    fields:
      - {name: a, column: a, kind: blob}`,
		"reserved column": `
sections:
  - name: identity
    table: intake_identity
    fields:
      - {name: a, column: version, kind: string}`,
		"duplicate field": `
sections:
  - name: one
    table: t_one
    fields:
      - {name: a, column: a, kind: string}
  - name: two
    table: t_two
    fields:
      - {name: a, column: a, kind: string}`,
		"not yaml": `sections: [`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(src))
			require.Error(t, err)
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusWaived.Valid())
	assert.False(t, Status("done").Valid())
}

func TestValidator(t *testing.T) {
	v, err := NewValidator(Default())
	require.NoError(t, err)

	t.Run("draft accepts open keys", func(t *testing.T) {
		require.NoError(t, v.ValidateDraft(document.Document{"clientName": "Jane", "legacyNotes": map[string]any{"x": 1}}))
	})
	t.Run("draft accepts null to clear", func(t *testing.T) {
		require.NoError(t, v.ValidateDraft(document.Document{"clientName": nil}))
	})
	t.Run("draft rejects wrong type", func(t *testing.T) {
		err := v.ValidateDraft(document.Document{"medicalConditionCurrent": "yes"})
		require.ErrorIs(t, err, common.ErrValidation)
	})
	t.Run("draft rejects unknown section status", func(t *testing.T) {
		err := v.ValidateDraft(document.Document{"sectionStatus": map[string]any{"identity": "done"}})
		require.ErrorIs(t, err, common.ErrValidation)
	})
	t.Run("draft accepts go slices", func(t *testing.T) {
		require.NoError(t, v.ValidateDraft(document.Document{"barriers": []string{"transport"}}))
	})
	t.Run("section rejects foreign field", func(t *testing.T) {
		err := v.ValidateSection("medical", document.Document{"clientName": "Jane"})
		require.ErrorIs(t, err, common.ErrValidation)
	})
	t.Run("section rejects empty patch", func(t *testing.T) {
		require.ErrorIs(t, v.ValidateSection("medical", document.Document{}), common.ErrValidation)
	})
	t.Run("section unknown", func(t *testing.T) {
		require.ErrorIs(t, v.ValidateSection("housing", document.Document{"a": 1}), common.ErrValidation)
	})
	t.Run("section ok", func(t *testing.T) {
		require.NoError(t, v.ValidateSection("medical", document.Document{
			"medicalConditionCurrent": true,
			"tobaccoProducts":         []any{"cigarettes"},
		}))
	})
}
