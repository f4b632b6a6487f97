package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/notifications"
	"sxvrs/internal/services"
)

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer func() { _ = s.plog.Close() }()

	s.logger.Debug("supervisor started",
		logging.Bool("autostart", s.cam.Autostart),
		logging.Bool("watcher", s.cam.Watcher),
		logging.String("mode", s.Status().Mode),
	)
	for {
		if s.shutdown.Load() || ctx.Err() != nil {
			s.setPhase(PhaseShutdown)
			s.logger.Debug("supervisor stopped")
			return
		}

		if !s.wantRecording() {
			if phase := s.phase(); phase == PhaseRecording || phase == PhaseRestarting {
				s.setPhase(PhaseStopped)
				s.publish(ctx, StatusMessage{Status: StatusStopped})
				s.logger.Info("recording stopped")
			}
			s.wait(ctx, s.opts.PollInterval)
			continue
		}

		if s.phase() == PhaseStopped {
			s.logger.Info("recording requested")
		}
		s.setPhase(PhaseRecording)
		err := s.runCycle(ctx)
		s.handleCycleResult(ctx, err)

		if s.wantRecording() && !s.shutdown.Load() {
			s.setPhase(PhaseRestarting)
		}
		s.wait(ctx, s.opts.PollInterval)
	}
}

// wait sleeps for d or until a signal arrives.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-timer.C:
	}
}

// sleepBackoff waits out start_error_sleep; stop-recording and shutdown cut it short.
func (s *Supervisor) sleepBackoff(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-s.wake:
			if s.shutdown.Load() || !s.wantRecording() {
				return
			}
		}
	}
}

func (s *Supervisor) handleCycleResult(ctx context.Context, err error) {
	if err == nil {
		s.failures.record(false)
		s.updateStatus(func(st *Status) {
			st.ErrorCount = 0
			st.LastError = ""
		})
		if s.backedOff {
			s.backedOff = false
			s.logger.Info("camera recovered from start failures")
			s.alert(ctx, notifications.EventCameraRecovered, notifications.Payload{"camera": s.cam.Name})
		}
		return
	}
	if errors.Is(err, context.Canceled) && (ctx.Err() != nil || !s.wantRecording()) {
		return
	}

	s.updateStatus(func(st *Status) { st.LastError = err.Error() })
	switch services.Classify(err) {
	case services.FailureUnavailable:
		s.startFailed(ctx, err)
	case services.FailureConfiguration:
		s.disable(ctx, err)
	case services.FailureTransient:
		logging.WarnWithContext(s.logger, "recording cycle degraded", "recorder_cycle_degraded",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the segment may be incomplete"),
		)
	default:
		logging.ErrorWithContext(s.logger, "recording cycle failed", "recorder_cycle_failed",
			logging.Error(err),
			logging.Int64(logging.FieldIteration, s.iteration.Load()),
			logging.String(logging.FieldErrorHint, "see the camera process log for command output"),
			logging.String(logging.FieldImpact, "iteration abandoned; the next cycle starts after the poll interval"),
		)
	}
}

func (s *Supervisor) startFailed(ctx context.Context, err error) {
	tripped := s.failures.record(true)
	count := s.failures.consecutive
	s.updateStatus(func(st *Status) { st.ErrorCount = count })
	logging.WarnWithContext(s.logger, "camera failed to start", "camera_start_failed",
		logging.Error(err),
		logging.Int("error_cnt", count),
		logging.String(logging.FieldErrorHint, "check the stream URL and that the camera is reachable"),
		logging.String(logging.FieldImpact, "no recording for this cycle"),
	)
	s.record(ctx, journal.KindStartFailure, err.Error())
	if !tripped {
		return
	}

	sleep := s.cam.StartErrorSleep
	until := s.now().Add(sleep)
	s.backedOff = true
	s.updateStatus(func(st *Status) { st.BackoffUntil = until })
	s.publish(ctx, StatusMessage{Status: StatusError, ErrorCount: count})
	s.record(ctx, journal.KindBackoff, fmt.Sprintf("%d failures; sleeping %s", count, sleep))
	s.alert(ctx, notifications.EventCameraBackoff, notifications.Payload{
		"camera": s.cam.Name,
		"errors": count,
		"sleep":  sleep.String(),
		"error":  err,
	})
	logging.ErrorWithContext(s.logger, "start failure threshold reached; backing off", "camera_backoff",
		logging.Int("error_cnt", count),
		logging.Duration("sleep", sleep),
		logging.String(logging.FieldErrorHint, "the camera stream is unavailable; tune start_error_* to change the backoff"),
		logging.String(logging.FieldImpact, "camera is not recording until the backoff ends"),
	)
	s.sleepBackoff(ctx, sleep)
	s.updateStatus(func(st *Status) { st.BackoffUntil = time.Time{} })
}

// disable stops recording after a configuration error; other cameras keep running.
func (s *Supervisor) disable(ctx context.Context, err error) {
	s.startReq.Store(false)
	s.stopReq.Store(true)
	s.setRecording(false)
	s.setPhase(PhaseStopped)
	s.publish(ctx, StatusMessage{Status: StatusError})
	s.record(ctx, journal.KindCameraDisabled, err.Error())
	s.alert(ctx, notifications.EventCameraDisabled, notifications.Payload{"camera": s.cam.Name, "error": err})
	logging.ErrorWithContext(s.logger, "camera disabled by configuration error", "camera_disabled",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix the camera templates in the config and restart the daemon"),
		logging.String(logging.FieldImpact, "camera stays stopped until record_start or a restart"),
	)
}

func (s *Supervisor) alert(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		s.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// failureWindow tracks start outcomes over the last `attempts` cycles.
type failureWindow struct {
	attempts    int
	threshold   int
	outcomes    []bool
	consecutive int
}

// record adds an outcome and reports whether the threshold was reached. A
// tripped window starts over.
func (w *failureWindow) record(failed bool) bool {
	if failed {
		w.consecutive++
	} else {
		w.consecutive = 0
	}
	if w.attempts <= 0 || w.threshold <= 0 {
		return false
	}
	w.outcomes = append(w.outcomes, failed)
	if len(w.outcomes) > w.attempts {
		w.outcomes = w.outcomes[len(w.outcomes)-w.attempts:]
	}
	failures := 0
	for _, f := range w.outcomes {
		if f {
			failures++
		}
	}
	if failures >= w.threshold {
		w.outcomes = w.outcomes[:0]
		return true
	}
	return false
}
