package valve

import (
	"testing"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/hal"
)

func fastConfig() MasterValveConfig {
	return MasterValveConfig{
		PreDelay:     time.Millisecond,
		PostDelay:    20 * time.Millisecond,
		OverlapGrace: 50 * time.Millisecond,
	}
}

func TestDriverOpenClose(t *testing.T) {
	gpio := hal.NewSimulatedGPIO()
	masterGPIO := hal.NewSimulatedGPIO()
	bus := events.New()
	mv := NewMasterValve(masterGPIO, fastConfig(), hal.WallClock{}, bus)
	d := NewDriver(1, gpio, mv, bus)

	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if !d.IsOpen() {
		t.Fatal("expected channel valve open")
	}
	if !masterGPIO.Get() {
		t.Fatal("expected master valve open")
	}

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if d.IsOpen() {
		t.Fatal("expected channel valve closed")
	}
}

func TestMasterValveStaysOpenAcrossOverlap(t *testing.T) {
	masterGPIO := hal.NewSimulatedGPIO()
	mv := NewMasterValve(masterGPIO, fastConfig(), hal.WallClock{}, nil)

	if err := mv.Acquire(); err != nil {
		t.Fatal(err)
	}
	mv.Release() // schedules close after PostDelay (20ms)

	time.Sleep(5 * time.Millisecond)
	if err := mv.Acquire(); err != nil { // overlapping task arrives before close fires
		t.Fatal(err)
	}
	if !masterGPIO.Get() {
		t.Fatal("master valve should still be open across the overlap")
	}

	time.Sleep(30 * time.Millisecond) // past the original post-delay deadline
	if !masterGPIO.Get() {
		t.Fatal("master valve must not have closed: a new acquire cancelled the pending close")
	}

	mv.Release()
	time.Sleep(40 * time.Millisecond)
	if masterGPIO.Get() {
		t.Fatal("master valve should have closed after the final release's post-delay")
	}
}

// TestNotifyUpcomingBridgesGapBeyondPostDelay reproduces scenario S5:
// a gap between one task ending and the next starting that is longer
// than PostDelay but still within OverlapGrace. Without the
// notify_upcoming lookahead, the close timer fires at the original
// PostDelay deadline and the valve closes and reopens moments later;
// with it, Release's close timer is pushed back to bridge the gap.
func TestNotifyUpcomingBridgesGapBeyondPostDelay(t *testing.T) {
	masterGPIO := hal.NewSimulatedGPIO()
	cfg := MasterValveConfig{PreDelay: time.Millisecond, PostDelay: 10 * time.Millisecond, OverlapGrace: 50 * time.Millisecond}
	clock := hal.NewSimulatedClock(time.Now())
	mv := NewMasterValve(masterGPIO, cfg, clock, nil)

	if err := mv.Acquire(); err != nil {
		t.Fatal(err)
	}
	mv.Release() // schedules a close at PostDelay (10ms) with no upcoming task yet

	// The next task is anticipated 30ms out: longer than PostDelay but
	// within OverlapGrace, the exact gap scenario S5 describes.
	mv.NotifyUpcoming(clock.Now().Add(30 * time.Millisecond))

	// Past the original 10ms PostDelay deadline, but before the
	// bridged deadline: the valve must still be open, not have
	// closed and reopened.
	time.Sleep(20 * time.Millisecond)
	if !masterGPIO.Get() {
		t.Fatal("master valve closed at the original PostDelay deadline despite a bridged notify_upcoming")
	}

	// The anticipated task's real Acquire arrives; it clears the
	// upcoming marker and cancels the bridged close outright.
	if err := mv.Acquire(); err != nil {
		t.Fatal(err)
	}
	if !masterGPIO.Get() {
		t.Fatal("master valve should remain open across the full bridged gap")
	}
}

// TestNotifyUpcomingBackstopClosesIfAcquireNeverArrives verifies that
// a notified-but-unfulfilled upcoming Acquire does not hold the master
// valve open forever: once the bridged deadline passes without the
// anticipated task starting, the valve still closes.
func TestNotifyUpcomingBackstopClosesIfAcquireNeverArrives(t *testing.T) {
	masterGPIO := hal.NewSimulatedGPIO()
	cfg := MasterValveConfig{PreDelay: time.Millisecond, PostDelay: 5 * time.Millisecond, OverlapGrace: 50 * time.Millisecond}
	clock := hal.NewSimulatedClock(time.Now())
	mv := NewMasterValve(masterGPIO, cfg, clock, nil)

	if err := mv.Acquire(); err != nil {
		t.Fatal(err)
	}
	mv.Release()
	mv.NotifyUpcoming(clock.Now().Add(15 * time.Millisecond))

	time.Sleep(40 * time.Millisecond)
	if masterGPIO.Get() {
		t.Fatal("master valve should have closed once the bridged deadline passed with no Acquire")
	}
}
