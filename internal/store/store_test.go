package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	in := sample{Name: "zone-1", Count: 7}
	require.NoError(t, s.Save("channel:1", 1, in))

	var out sample
	require.NoError(t, s.Load("channel:1", 1, &out))
	require.Equal(t, in, out)
}

func TestLoadMissingKeyReturnsNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	var out sample
	err = s.Load("nope", 1, &out)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadSchemaVersionMismatch(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("system", 1, sample{Name: "x"}))

	var out sample
	err = s.Load("system", 2, &out)
	require.Error(t, err)
}

func TestDeleteRemovesValue(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("calibration", 1, sample{Count: 450}))
	require.True(t, s.Exists("calibration"))

	require.NoError(t, s.Delete("calibration"))
	require.False(t, s.Exists("calibration"))
}
