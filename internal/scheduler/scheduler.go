package scheduler

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/observability"
)

// State is the refresh scheduler state (Idle, RequestPending).
const (
	Idle State = iota
	RequestPending
)

// State is the refresh scheduler state.
type State int

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestPending:
		return "request_pending"
	default:
		return "unknown"
	}
}

// Trigger names the event behind a transition.
type Trigger string

const (
	TriggerColdStart   Trigger = "cold_start"
	TriggerBoundary    Trigger = "boundary"
	TriggerManual      Trigger = "manual"
	TriggerInbound     Trigger = "inbound"
	TriggerSendFailure Trigger = "send_failure"
	TriggerTimeout     Trigger = "timeout"
)

// ErrTimeout describes a pending request that expired without a reply.
var ErrTimeout = errors.New("refresh request timed out")

// Requester sends refresh requests on the companion link.
type Requester interface {
	SendRefreshRequest() error
	// Release frees the outbound slot of a request that will not be answered.
	Release()
}

// Config holds scheduler parameters.
type Config struct {
	// Interval between wall-clock refresh boundaries. Rounded down to whole minutes.
	Interval time.Duration
	// Timeout after which a pending request is abandoned.
	Timeout      time.Duration
	OnTransition func(from, to State, trigger Trigger) // optional
}

// Scheduler decides when to ask the companion for weather. At most one request
// is pending at a time. Not safe for concurrent use; the engine loop owns it.
type Scheduler struct {
	requester       Requester
	logger          *zap.Logger
	intervalMinutes int
	timeout         time.Duration
	onTransition    func(from, to State, trigger Trigger)

	state       State
	requestedAt time.Time
}

// New creates a Scheduler in Idle.
func New(requester Requester, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	minutes := int(cfg.Interval / time.Minute)
	if minutes <= 0 {
		minutes = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	observability.SchedulerState.Set(float64(Idle))
	return &Scheduler{
		requester:       requester,
		logger:          logger,
		intervalMinutes: minutes,
		timeout:         cfg.Timeout,
		onTransition:    cfg.OnTransition,
		state:           Idle,
	}
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Deadline returns when the pending request expires; ok is false while Idle.
func (s *Scheduler) Deadline() (deadline time.Time, ok bool) {
	if s.state != RequestPending {
		return time.Time{}, false
	}
	return s.requestedAt.Add(s.timeout), true
}

// ColdStart issues the first request.
func (s *Scheduler) ColdStart(now time.Time) error {
	return s.request(now, TriggerColdStart)
}

// RequestNow issues an out-of-cycle request. While a request is pending it
// returns appsync.ErrChannelBusy and the pending timer is kept.
func (s *Scheduler) RequestNow(now time.Time) error {
	return s.request(now, TriggerManual)
}

// Tick handles a clock tick. A pending request past its timeout returns to
// Idle first, so a boundary tick can retry straight away. Ticks off a refresh
// boundary cause no other transition.
func (s *Scheduler) Tick(now time.Time) error {
	if s.state == RequestPending && !now.Before(s.requestedAt.Add(s.timeout)) {
		s.requester.Release()
		observability.RefreshTimeoutsTotal.Inc()
		s.logger.Info("refresh request expired",
			zap.Error(ErrTimeout),
			zap.Duration("waited", now.Sub(s.requestedAt)))
		s.transition(Idle, TriggerTimeout)
	}
	if !s.IsBoundary(now) || s.state != Idle {
		return nil
	}
	return s.request(now, TriggerBoundary)
}

// IsBoundary reports whether now falls in a refresh boundary minute of the local day.
func (s *Scheduler) IsBoundary(now time.Time) bool {
	minuteOfDay := now.Hour()*60 + now.Minute()
	return minuteOfDay%s.intervalMinutes == 0
}

// InboundReceived ends a pending request after a weather update.
func (s *Scheduler) InboundReceived(now time.Time) {
	if s.state != RequestPending {
		return
	}
	s.logger.Debug("refresh answered", zap.Duration("latency", now.Sub(s.requestedAt)))
	s.transition(Idle, TriggerInbound)
}

// SendFailed ends a pending request whose delivery failed. Retry waits for the next boundary.
func (s *Scheduler) SendFailed(now time.Time) {
	if s.state != RequestPending {
		return
	}
	s.transition(Idle, TriggerSendFailure)
}

func (s *Scheduler) request(now time.Time, trigger Trigger) error {
	if s.state == RequestPending {
		observability.RefreshRequestsTotal.WithLabelValues("busy").Inc()
		return fmt.Errorf("refresh (%s): %w", trigger, appsync.ErrChannelBusy)
	}
	if err := s.requester.SendRefreshRequest(); err != nil {
		s.logger.Debug("refresh request not sent",
			zap.String("trigger", string(trigger)),
			zap.String("state", s.state.String()),
			zap.Error(err))
		return fmt.Errorf("refresh (%s): %w", trigger, err)
	}
	s.requestedAt = now
	s.transition(RequestPending, trigger)
	return nil
}

func (s *Scheduler) transition(to State, trigger Trigger) {
	from := s.state
	s.state = to
	if to == Idle {
		s.requestedAt = time.Time{}
	}
	observability.SchedulerTransitionsTotal.WithLabelValues(from.String(), to.String(), string(trigger)).Inc()
	observability.SchedulerState.Set(float64(to))
	s.logger.Info("scheduler transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("trigger", string(trigger)))
	if s.onTransition != nil {
		s.onTransition(from, to, trigger)
	}
}
