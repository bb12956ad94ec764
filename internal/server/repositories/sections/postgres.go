// Package sections persists relational Section Records, one table per
// catalog section, with a per-row version used for compare-and-increment.
package sections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/intakekeeper/internal/catalog"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/dbx"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// encode converts a document value into the column representation.
func encode(f catalog.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case catalog.KindList:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		return b, nil
	case catalog.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field %s expects bool", common.ErrValidation, f.Name)
		}
		return b, nil
	case catalog.KindNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("%w: field %s expects number", common.ErrValidation, f.Name)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %s expects string", common.ErrValidation, f.Name)
		}
		return s, nil
	}
}

func scanTarget(f catalog.Field) any {
	switch f.Kind {
	case catalog.KindBool:
		return &sql.NullBool{}
	case catalog.KindNumber:
		return &sql.NullFloat64{}
	case catalog.KindList:
		return &[]byte{}
	default:
		return &sql.NullString{}
	}
}

func decode(f catalog.Field, target any) (any, error) {
	switch t := target.(type) {
	case *sql.NullBool:
		if !t.Valid {
			return nil, nil
		}
		return t.Bool, nil
	case *sql.NullFloat64:
		if !t.Valid {
			return nil, nil
		}
		return t.Float64, nil
	case *sql.NullString:
		if !t.Valid {
			return nil, nil
		}
		return t.String, nil
	case *[]byte:
		if *t == nil {
			return nil, nil
		}
		var list []any
		if err := json.Unmarshal(*t, &list); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if list == nil {
			return nil, nil
		}
		return list, nil
	}
	return nil, fmt.Errorf("field %s: unexpected scan target %T", f.Name, target)
}

// Get returns the record or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error) {
	return r.get(ctx, section, intakeID, "")
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, section *catalog.Section, intakeID string) (*models.SectionRecord, error) {
	return r.get(ctx, section, intakeID, " FOR UPDATE")
}

func (r *PostgresRepository) get(ctx context.Context, section *catalog.Section, intakeID, lock string) (*models.SectionRecord, error) {
	query := fmt.Sprintf(`SELECT %s, version, updated_by, updated_at FROM %s WHERE intake_id = $1%s`,
		strings.Join(section.Columns(), ", "), section.Table, lock)

	targets := make([]any, 0, len(section.Fields)+3)
	for _, f := range section.Fields {
		targets = append(targets, scanTarget(f))
	}
	rec := &models.SectionRecord{IntakeID: intakeID, Section: section.Name, Values: make(map[string]any, len(section.Fields))}
	targets = append(targets, &rec.Version, &rec.UpdatedBy, &rec.UpdatedAt)

	err := r.db.QueryRowContext(ctx, query, intakeID).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", section.Name, err)
	}

	for i, f := range section.Fields {
		v, err := decode(f, targets[i])
		if err != nil {
			return nil, err
		}
		rec.Values[f.Name] = v
	}
	return rec, nil
}

// columnsOf returns the columns and encoded args for the fields present in
// values, in catalog order. Unknown keys are a validation error.
func columnsOf(section *catalog.Section, values map[string]any) ([]string, []any, error) {
	for k := range values {
		if _, ok := section.Field(k); !ok {
			return nil, nil, fmt.Errorf("%w: field %q does not belong to section %s", common.ErrValidation, k, section.Name)
		}
	}
	var cols []string
	var args []any
	for _, f := range section.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		enc, err := encode(f, v)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, f.Column)
		args = append(args, enc)
	}
	return cols, args, nil
}

// Insert creates the record with version 1. If a record already exists the
// call fails with common.ErrVersionConflict.
func (r *PostgresRepository) Insert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error {
	cols, args, err := columnsOf(section, rec.Values)
	if err != nil {
		return err
	}
	allCols := append([]string{"intake_id", "version", "updated_by"}, cols...)
	allArgs := append([]any{rec.IntakeID, int64(1), rec.UpdatedBy}, args...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (intake_id) DO NOTHING RETURNING updated_at`,
		section.Table, strings.Join(allCols, ", "), placeholders(1, len(allCols)))

	err = r.db.QueryRowContext(ctx, query, allArgs...).Scan(&rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rec.Version = 1
	return nil
}

// Update writes the given columns and increments the version only if the
// stored version equals expectedVersion.
func (r *PostgresRepository) Update(ctx context.Context, section *catalog.Section, rec *models.SectionRecord, expectedVersion int64) error {
	cols, args, err := columnsOf(section, rec.Values)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(cols)+3)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+3))
	}
	sets = append(sets, "version = version + 1", fmt.Sprintf("updated_by = $%d", len(cols)+3), "updated_at = now()")

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE intake_id = $1 AND version = $2 RETURNING version, updated_at`,
		section.Table, strings.Join(sets, ", "))

	allArgs := append([]any{rec.IntakeID, expectedVersion}, args...)
	allArgs = append(allArgs, rec.UpdatedBy)

	err = r.db.QueryRowContext(ctx, query, allArgs...).Scan(&rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Upsert writes the given columns without a version check, creating the
// record when absent. Used by the backfill, which never overwrites values
// already present (COALESCE keeps the existing column).
func (r *PostgresRepository) Upsert(ctx context.Context, section *catalog.Section, rec *models.SectionRecord) error {
	cols, args, err := columnsOf(section, rec.Values)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	allCols := append([]string{"intake_id", "version", "updated_by"}, cols...)
	allArgs := append([]any{rec.IntakeID, int64(1), rec.UpdatedBy}, args...)

	sets := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", c, section.Table, c, c))
	}
	sets = append(sets, fmt.Sprintf("version = %s.version + 1", section.Table), "updated_at = now()")

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (intake_id) DO UPDATE SET %s RETURNING version, updated_at`,
		section.Table, strings.Join(allCols, ", "), placeholders(1, len(allCols)), strings.Join(sets, ", "))

	if err := r.db.QueryRowContext(ctx, query, allArgs...).Scan(&rec.Version, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}
