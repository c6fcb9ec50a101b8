package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/greenfield-labs/irrigctl/internal/events"
	"github.com/greenfield-labs/irrigctl/internal/executor"
	"github.com/greenfield-labs/irrigctl/internal/flow"
	"github.com/greenfield-labs/irrigctl/pkg/types"
)

// Start launches the supervised goroutines: taskLoop drains the
// queue into idle executors and ticks running ones, schedulerLoop
// evaluates every channel against the clock, and wipeLoop advances an
// in-flight factory wipe. Panics inside any loop are recovered and
// latch FlagFault rather than crashing the process, mirroring the
// teacher worker pool's discipline of never letting a background
// goroutine take the process down.
func (c *Core) Start() error {
	c.mu2.Lock()
	defer c.mu2.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.stopCh = make(chan struct{})

	c.wg.Add(3)
	go c.supervise("task-loop", c.taskLoop)
	go c.supervise("scheduler-loop", c.schedulerLoop)
	go c.supervise("wipe-loop", c.wipeLoop)

	return nil
}

// Stop signals all loops to exit and waits for them to finish. Safe
// to call multiple times.
func (c *Core) Stop() {
	c.mu2.Lock()
	defer c.mu2.Unlock()
	if !c.started {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.started = false
}

func (c *Core) supervise(name string, loop func()) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop panicked, latching fault", "loop", name, "panic", r)
			c.safetyL.RaiseAnomaly(types.FlagFault)
		}
	}()
	loop()
}

func (c *Core) taskLoop() {
	period := c.periods.TaskTick
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tickTasks()
		}
	}
}

func (c *Core) tickTasks() {
	c.mu.Lock()
	idleExecutors := make(map[types.ChannelID]*executor.Executor, len(c.executors))
	busyExecutors := make(map[types.ChannelID]*executor.Executor, len(c.executors))
	for id, ex := range c.executors {
		if ex.IsBusy() {
			busyExecutors[id] = ex
		} else {
			idleExecutors[id] = ex
		}
	}
	queueHasWork := c.queue.Len() > 0
	c.mu.Unlock()

	// notify_upcoming/clear_upcoming lookahead: as long as the queue
	// holds a task waiting for a channel to free up, tell the master
	// valve a new Acquire is imminent so its pending post-delay close
	// (from whichever channel just released it) keeps getting pushed
	// back instead of firing and reopening moments later (spec's
	// overlap-grace scenario).
	if queueHasWork {
		c.master.NotifyUpcoming(c.clock.Now())
	} else {
		c.master.ClearUpcoming()
	}

	for id, ex := range busyExecutors {
		anomaly, completed := ex.Tick()
		if anomaly != flow.AnomalyNone {
			c.handleAnomaly(id, ex, anomaly)
		}
		if completed {
			snap := ex.Snapshot()
			c.mu.Lock()
			if ch, ok := c.channels[id]; ok {
				ch.Stats.TotalVolumeML += uint64(snap.VolumeSoFarML)
				ch.Stats.TotalDurationS += snap.ElapsedMS / 1000
				ch.Stats.LastRunVolumeML = snap.VolumeSoFarML
				ch.Stats.RunCount++
				c.channels[id] = ch
			}
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.RecordCompleted(time.Duration(snap.ElapsedMS) * time.Millisecond)
			}
		}
	}

	for id, ex := range idleExecutors {
		if anomaly := ex.CheckIdle(); anomaly != flow.AnomalyNone {
			c.handleAnomaly(id, nil, anomaly)
		}
	}

	if len(idleExecutors) == 0 {
		return
	}
	if task, ok := c.queue.Peek(); ok {
		ex, hasExec := idleExecutors[task.ChannelID]
		if hasExec {
			c.queue.Pop()
			if err := ex.Start(task); err != nil {
				slog.Warn("task start failed", "channel", task.ChannelID, "err", err)
			} else if c.metrics != nil {
				c.metrics.RecordStart()
			}
		}
	}
}

// handleAnomaly latches a flow anomaly as a safety alarm and, for the
// fault-level classes (no-flow, stall), stops the offending task
// outright rather than leaving it running under a raised flag. ex is
// nil for anomalies observed while a channel is idle (UnexpectedFlow
// from CheckIdle), which have no active task to abort.
func (c *Core) handleAnomaly(id types.ChannelID, ex *executor.Executor, a flow.Anomaly) {
	switch a {
	case flow.AnomalyNoFlow:
		c.safetyL.RaiseAnomaly(types.FlagNoFlow)
		if c.metrics != nil {
			c.metrics.RecordFlowAnomaly("no_flow")
		}
		if ex != nil {
			ex.Abort(fmt.Errorf("no flow detected on channel %d", id))
			if c.metrics != nil {
				c.metrics.RecordFailed()
			}
		}
	case flow.AnomalyUnexpectedFlow:
		c.safetyL.RaiseAnomaly(types.FlagUnexpectedFlow)
		if c.metrics != nil {
			c.metrics.RecordFlowAnomaly("unexpected_flow")
		}
	case flow.AnomalyStall:
		c.safetyL.RaiseAnomaly(types.FlagNoFlow)
		if c.metrics != nil {
			c.metrics.RecordFlowAnomaly("stall")
		}
		if ex != nil {
			ex.Abort(fmt.Errorf("task stalled past the wall-clock cap on channel %d", id))
			if c.metrics != nil {
				c.metrics.RecordFailed()
			}
		}
	}
	if c.bus != nil {
		c.bus.Publish(events.AlarmRaised, a)
	}
}

func (c *Core) schedulerLoop() {
	period := c.periods.SchedulerTick
	if period <= 0 {
		period = 15 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sampleTemperature()
			c.sampleRain()
			c.tickScheduler()
		}
	}
}

func (c *Core) tickScheduler() {
	now := c.safetyL.Now()

	c.mu.Lock()
	ids := make([]types.ChannelID, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.mu.Lock()
		ch := c.channels[id]
		c.mu.Unlock()

		task, due := c.scheduler.Evaluate(&ch, now)

		// Evaluate may have mutated ch's runtime bookkeeping (last
		// fired time, the once-per-day Auto-mode dedup fields) even
		// when no task fired; persist every time so that bookkeeping
		// survives a restart.
		c.mu.Lock()
		c.channels[id] = ch
		if err := c.persistChannelsLocked(); err != nil {
			slog.Warn("persist channel after schedule evaluation failed", "channel", id, "err", err)
		}
		c.mu.Unlock()

		if !due {
			continue
		}
		if err := c.CreateTask(task); err != nil {
			slog.Warn("scheduled task rejected", "channel", id, "err", err)
		}
	}
}

func (c *Core) wipeLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.wipeM.State().Step >= types.WipeStepConfirmed && c.wipeM.State().Step != types.WipeStepDone {
				if _, err := c.wipeM.Advance(); err != nil {
					slog.Warn("wipe step failed", "err", err)
				}
			}
		}
	}
}
