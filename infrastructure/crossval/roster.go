// Package crossval turns the cross-validation roster into per-contributor
// peer scores. Each roster row says that a validator reviewed a validatee;
// the validator's own score file is the score the validatee received.
package crossval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-crossval/internal/domain"
)

// Roster column headers.
const (
	ColumnValidateeEmail = "Validated Email"
	ColumnValidatorEmail = "Validator Email"
	ColumnValidateeName  = "Validated Name"
	ColumnBigGroup       = "Big Group"
)

// TotalGroup marks the summary row of the roster sheet.
const TotalGroup = "TOTAL"

var validate = validator.New()

type rosterRow struct {
	BigGroup       string
	ValidatorEmail string `validate:"required"`
	ValidateeEmail string
	ValidateeName  string
}

// RowError reports a roster row that was dropped.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("roster line %d: %v", e.Line, e.Err) }

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error { return e.Err }

// ReadRoster parses the roster CSV at path. TOTAL rows are skipped. Rows
// that fail to parse or lack a validator email are dropped and returned as
// RowErrors. A missing file wraps domain.ErrNotFound.
func ReadRoster(path string) ([]domain.Edge, []*RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("roster %s: %w", path, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()
	return DecodeRoster(f)
}

// DecodeRoster is ReadRoster over r.
func DecodeRoster(r io.Reader) ([]domain.Edge, []*RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read roster header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		edges   []domain.Edge
		dropped []*RowError
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dropped = append(dropped, &RowError{Line: line, Err: err})
			continue
		}
		row := rosterRow{
			BigGroup:       cell(rec, ColumnBigGroup),
			ValidatorEmail: cell(rec, ColumnValidatorEmail),
			ValidateeEmail: cell(rec, ColumnValidateeEmail),
			ValidateeName:  cell(rec, ColumnValidateeName),
		}
		if row.BigGroup == TotalGroup {
			continue
		}
		if err := validate.Struct(row); err != nil {
			dropped = append(dropped, &RowError{Line: line, Err: err})
			continue
		}
		edges = append(edges, domain.Edge{
			BigGroup:       row.BigGroup,
			ValidatorEmail: row.ValidatorEmail,
			ValidateeEmail: row.ValidateeEmail,
			ValidateeName:  row.ValidateeName,
		})
	}
	return edges, dropped, nil
}
