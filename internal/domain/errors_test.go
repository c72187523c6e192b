package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "unsupported shape",
			path:    "sub/dataset.json",
			kind:    "dataset",
			err:     ErrUnsupportedShape,
			wantMsg: "parse error: kind=dataset, path=sub/dataset.json, err=unsupported document shape",
		},
		{
			name:    "decode failure",
			path:    "roster.csv",
			kind:    "csv",
			err:     errors.New("bare quote"),
			wantMsg: "parse error: kind=csv, path=roster.csv, err=bare quote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewParseError(tt.path, tt.kind, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, tt.path, err.Path)
			assert.Equal(t, tt.kind, err.Kind)
			assert.True(t, errors.Is(err, tt.err), "Should unwrap to underlying error")
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("label_distribution")
		err.AddError("L1 Sheep 20.0% outside 41.0% ± 15.0%")

		assert.Equal(t, "validation error for label_distribution: L1 Sheep 20.0% outside 41.0% ± 15.0%", err.Error())
		assert.True(t, err.HasErrors())
		assert.Len(t, err.Errors, 1)
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("label_distribution")
		err.AddError("first")
		err.AddError("second")

		assert.Contains(t, err.Error(), "validation errors for label_distribution")
		assert.Equal(t, []string{"first", "second"}, err.Errors)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("schema")
		assert.False(t, err.HasErrors())
		assert.Empty(t, err.Errors)
	})
}

func TestCommonDomainErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrUnsupportedShape, "unsupported document shape"},
		{ErrNotFound, "not found"},
		{ErrInvalidConfiguration, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}
