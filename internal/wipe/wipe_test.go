package wipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/store"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

type fakeEraser struct {
	channels, schedules, calibration, statistics int
}

func (f *fakeEraser) EraseChannels() error    { f.channels++; return nil }
func (f *fakeEraser) EraseSchedules() error   { f.schedules++; return nil }
func (f *fakeEraser) EraseCalibration() error { f.calibration++; return nil }
func (f *fakeEraser) EraseStatistics() error  { f.statistics++; return nil }

func newMachine(t *testing.T, now time.Time) (*Machine, *store.Store, *fakeEraser) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	eraser := &fakeEraser{}
	m, err := New(s, eraser, events.New(), func() time.Time { return now })
	require.NoError(t, err)
	return m, s, eraser
}

func TestWipeFullFlow(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	m, _, eraser := newMachine(t, now)

	code, err := m.Request()
	require.NoError(t, err)
	require.NoError(t, m.Confirm(code))

	for {
		done, err := m.Advance()
		require.NoError(t, err)
		if done {
			break
		}
	}

	require.Equal(t, 1, eraser.channels)
	require.Equal(t, 1, eraser.schedules)
	require.Equal(t, 1, eraser.calibration)
	require.Equal(t, 1, eraser.statistics)
	require.Equal(t, types.WipeStepDone, m.State().Step)
}

func TestConfirmWrongCodeRejected(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	m, _, _ := newMachine(t, now)

	_, err := m.Request()
	require.NoError(t, err)
	require.Error(t, m.Confirm(0xDEADBEEF))
}

func TestConfirmWindowExpires(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	cur := now
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	m, err := New(s, &fakeEraser{}, nil, func() time.Time { return cur })
	require.NoError(t, err)

	code, err := m.Request()
	require.NoError(t, err)

	cur = now.Add(ConfirmWindow + time.Second)
	err = m.Confirm(code)
	require.Error(t, err)
}

func TestProgressResumesAfterReload(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)

	m1, err := New(s, &fakeEraser{}, nil, func() time.Time { return now })
	require.NoError(t, err)
	code, err := m1.Request()
	require.NoError(t, err)
	require.NoError(t, m1.Confirm(code))
	_, err = m1.Advance() // confirmed -> erasing channels
	require.NoError(t, err)

	s2, err := store.Open(dir)
	require.NoError(t, err)
	eraser2 := &fakeEraser{}
	m2, err := New(s2, eraser2, nil, func() time.Time { return now })
	require.NoError(t, err)
	require.Equal(t, types.WipeStepErasingChannels, m2.State().Step)

	_, err = m2.Advance()
	require.NoError(t, err)
	require.Equal(t, 1, eraser2.channels)
}
