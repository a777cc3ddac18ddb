package app

import (
	"fmt"
	"log/slog"

	"github.com/ayusman/cragtrack/internal/pose"
	"github.com/ayusman/cragtrack/internal/transform"
)

// HandleMessage processes one raw inbound message. It is the inbound
// client's handler and is safe to call from any goroutine; messages are
// processed one at a time.
//
// Invalid frames and unknown messages are logged and dropped without
// touching session state. A reset_holds control message resets every hold
// and emits a reset record.
func (a *App) HandleMessage(raw []byte) {
	msg, err := pose.Decode(raw)
	if err != nil {
		a.invalid.Add(1)
		slog.Warn("app: dropping invalid frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case *pose.PoseFrame:
		if err := a.processFrame(m.Frame); err != nil {
			slog.Error("app: frame processing failed", "error", err)
		}
	case pose.ResetHolds:
		a.mu.Lock()
		_, err := a.resetLocked()
		a.mu.Unlock()
		if err != nil {
			slog.Warn("app: ignoring reset", "error", err)
		}
	case pose.Unknown:
		a.unknown.Add(1)
		slog.Warn("app: ignoring unknown message", "type", m.Type)
	}
}

// processFrame runs the per-frame path:
// 1. project the frame onto the wall and extend the hands
// 2. drop it if any result is not finite
// 3. apply pending tuning
// 4. update the detector and session
// 5. encode the record and fan it out
func (a *App) processFrame(f pose.Frame) error {
	wallFrame := transform.Transform(f, a.cal)
	if !wallFrame.Finite() {
		// Overflowing coordinates cannot be encoded; drop before any state changes.
		a.invalid.Add(1)
		slog.Warn("app: dropping frame with non-finite wall coordinates")
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if p := a.pendingTuning.Swap(nil); p != nil {
		a.tracker.Detector().SetParams(*p)
		slog.Info("app: tuning applied",
			"proximity_threshold", p.ProximityThreshold,
			"touch_duration", p.TouchDuration)
	}

	a.tracker.Update(wallFrame)
	if _, err := a.emitLocked(a.tracker.Record(&wallFrame, false)); err != nil {
		return fmt.Errorf("frame %d: %w", a.processed.Load()+1, err)
	}

	n := a.processed.Add(1)
	if n%LogEvery == 0 {
		elapsed := a.clock.Since(a.started).Seconds()
		rate := 0.0
		if elapsed > 0 {
			rate = float64(n) / elapsed
		}
		slog.Info("app: throughput", "processed", n, "rate", fmt.Sprintf("%.2f msg/s", rate))
	}
	return nil
}
