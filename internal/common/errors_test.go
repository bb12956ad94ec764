package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("save: %w", &ConflictError{Entity: "intake", Expected: 1, Current: 2})

	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.False(t, errors.Is(err, ErrorNotFound))

	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(2), ce.Current)
	assert.Contains(t, err.Error(), "expected 1, current 2")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"conflict", &ConflictError{}, ClassConflict},
		{"wrapped conflict", fmt.Errorf("x: %w", ErrVersionConflict), ClassConflict},
		{"unavailable", ErrUnavailable, ClassTransient},
		{"rate limited", fmt.Errorf("rpc: %w", ErrRateLimited), ClassTransient},
		{"validation", ErrValidation, ClassValidation},
		{"archived", ErrArchived, ClassValidation},
		{"storage", ErrStorage, ClassFatal},
		{"unknown", errors.New("boom"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
