package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-crossval/internal/domain"
)

const sample = `---
submission_300:
  :submitters:
  - :name: Ann Lee
    :email: ann@x.edu
    :sid: '3031'
  - :name: Bo Chen
    :email: bo@x.edu
    :sid: 3032
  :created_at: 2025-10-01 12:00:00.000000000 Z
  :status: graded
submission_100:
  :submitters:
  - :name: Cy Diaz
    :email: cy@x.edu
  :created_at: 2025-10-02 08:30:00.000000000 Z
submission_broken: nope
`

func TestDecode(t *testing.T) {
	subs, err := Decode([]byte(sample))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "submission_300", subs[0].ID)
	assert.Equal(t, "graded", subs[0].Status)
	assert.Equal(t, domain.Submitter{Name: "Ann Lee", Email: "ann@x.edu", SID: "3031"}, subs[0].Primary())
	assert.Equal(t, "3032", subs[0].Submitters[1].SID)
	assert.Contains(t, subs[0].CreatedAt, "2025-10-01")

	assert.Equal(t, "submission_100", subs[1].ID)
	assert.Equal(t, domain.StatusPending, subs[1].Status)
	assert.Empty(t, subs[1].Primary().SID)
}

func TestDecode_Shapes(t *testing.T) {
	subs, err := Decode([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = Decode([]byte("- a\n- b\n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedShape)

	_, err = Decode([]byte("a: [\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "submission_metadata.yml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))
	subs, err := Load(p)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
