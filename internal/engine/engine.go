// Package engine runs the single event loop that owns the weather state,
// the refresh scheduler and the companion channel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
	"github.com/chrpow/Wearcast-Pebble/internal/observability"
	"github.com/chrpow/Wearcast-Pebble/internal/outfit"
	"github.com/chrpow/Wearcast-Pebble/internal/scheduler"
	"github.com/chrpow/Wearcast-Pebble/internal/weather"
)

// ErrStopped is returned when posting to an engine whose loop has exited.
var ErrStopped = errors.New("engine stopped")

const defaultQueueSize = 32

// Config holds engine parameters. Zero values fall back to defaults.
type Config struct {
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	Clock24h        bool
	CityMaxLength   int
	Policy          outfit.Policy
	QueueSize       int
	Now             func() time.Time
}

// Engine serialises every event through one goroutine. State, scheduler and
// channel are touched only from Dispatch; other goroutines read View.
type Engine struct {
	logger    *zap.Logger
	channel   *appsync.Channel
	scheduler *scheduler.Scheduler
	policy    outfit.Policy
	clock24h  bool
	now       func() time.Time

	events chan Event
	done   chan struct{}

	state  weather.State
	outfit outfit.Selection
	view   atomic.Pointer[View]
}

// New creates an Engine that sends refresh requests through transport.
// The transport reports completions back with PostSendResult.
func New(transport appsync.Transport, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Policy == (outfit.Policy{}) {
		cfg.Policy = outfit.DefaultPolicy
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		logger:   logger,
		policy:   cfg.Policy,
		clock24h: cfg.Clock24h,
		now:      cfg.Now,
		events:   make(chan Event, cfg.QueueSize),
		done:     make(chan struct{}),
		state:    weather.NewState(),
		outfit:   outfit.Default,
	}
	e.channel = appsync.NewChannel(transport, logger.Named("appsync"), cfg.CityMaxLength)
	e.scheduler = scheduler.New(e.channel, scheduler.Config{
		Interval: cfg.RefreshInterval,
		Timeout:  cfg.RefreshTimeout,
	}, logger.Named("scheduler"))
	e.publish(e.now())
	return e
}

// View returns the latest published snapshot. Safe for concurrent use.
func (e *Engine) View() *View {
	return e.view.Load()
}

// Run issues the cold-start request and dispatches events until ctx is done.
// Call Run once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	if err := e.Dispatch(Event{Type: EventColdStart}); err != nil {
		e.logger.Warn("cold start request not sent", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped", zap.Int("dropped_events", len(e.events)))
			return ctx.Err()
		case ev := <-e.events:
			if err := e.Dispatch(ev); err != nil && ev.Reply == nil {
				e.logger.Debug("event not handled",
					zap.String("type", ev.Type.String()),
					zap.Error(err))
			}
		}
	}
}

// RunClock posts a tick at the start of every wall-clock minute until ctx is
// done or the engine stops.
func (e *Engine) RunClock(ctx context.Context) error {
	for {
		now := e.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-e.done:
			timer.Stop()
			return ErrStopped
		case <-timer.C:
			if err := e.Post(ctx, Event{Type: EventTick, At: next}); err != nil {
				return err
			}
		}
	}
}

// Post queues ev for the loop. It blocks while the queue is full.
func (e *Engine) Post(ctx context.Context, ev Event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// SubmitInbound queues one inbound message and waits for its decode result.
func (e *Engine) SubmitInbound(ctx context.Context, raw []byte, isJSON bool) error {
	return e.call(ctx, Event{Type: EventInbound, Payload: raw, JSON: isJSON})
}

// RequestRefresh asks for an out-of-cycle refresh. It returns an error wrapping
// appsync.ErrChannelBusy while a request is pending.
func (e *Engine) RequestRefresh(ctx context.Context) error {
	return e.call(ctx, Event{Type: EventRefreshNow})
}

// PostSendResult reports the outcome of the transport send tagged id. A nil err is success.
func (e *Engine) PostSendResult(ctx context.Context, id appsync.SendID, err error) error {
	if err != nil {
		return e.Post(ctx, Event{Type: EventSendFailure, SendID: id, Err: err})
	}
	return e.Post(ctx, Event{Type: EventSendSuccess, SendID: id})
}

// Reconfigure swaps the outfit policy and clock style. The outfit is
// re-resolved against the current weather at once.
func (e *Engine) Reconfigure(ctx context.Context, s Settings) error {
	return e.call(ctx, Event{Type: EventReconfigure, Settings: &s})
}

func (e *Engine) call(ctx context.Context, ev Event) error {
	ev.Reply = make(chan error, 1)
	if err := e.Post(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Dispatch handles one event on the calling goroutine. Only the loop (or a
// test driving the engine directly) may call it.
func (e *Engine) Dispatch(ev Event) error {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	observability.EngineEventsTotal.WithLabelValues(ev.Type.String()).Inc()

	var err error
	switch ev.Type {
	case EventTick:
		err = e.scheduler.Tick(ev.At)
	case EventColdStart:
		err = e.scheduler.ColdStart(ev.At)
	case EventRefreshNow:
		err = e.scheduler.RequestNow(ev.At)
	case EventInbound:
		err = e.handleInbound(ev)
	case EventSendSuccess:
		if e.staleSendResult(ev) {
			break
		}
		e.channel.OnSendSuccess()
	case EventSendFailure:
		if e.staleSendResult(ev) {
			break
		}
		e.channel.OnSendFailure(ev.Err)
		e.scheduler.SendFailed(ev.At)
	case EventReconfigure:
		err = e.reconfigure(ev.Settings)
	default:
		err = fmt.Errorf("unknown event type %d", ev.Type)
	}

	e.publish(ev.At)
	if ev.Reply != nil {
		ev.Reply <- err
	}
	return err
}

// staleSendResult reports whether ev completes a send other than the
// outstanding one, such as a delivery expiry that raced a newer request.
func (e *Engine) staleSendResult(ev Event) bool {
	if ev.SendID == 0 || ev.SendID == e.channel.SendID() {
		return false
	}
	observability.SendResultsTotal.WithLabelValues("stale").Inc()
	e.logger.Debug("stale send result ignored",
		zap.Stringer("event", ev.Type),
		zap.Uint64("send_id", uint64(ev.SendID)),
		zap.Uint64("outstanding_send_id", uint64(e.channel.SendID())))
	return true
}

func (e *Engine) handleInbound(ev Event) error {
	var (
		u   weather.Update
		err error
	)
	if ev.JSON {
		u, err = e.channel.OnInboundJSON(ev.Payload)
	} else {
		u, err = e.channel.OnInbound(ev.Payload)
	}
	if err != nil {
		return err
	}
	e.scheduler.InboundReceived(ev.At)

	change, err := e.state.Apply(u, ev.At)
	if err != nil {
		e.logger.Warn("weather update rejected", zap.Error(err))
		return fmt.Errorf("%w: %w", appsync.ErrMalformed, err)
	}
	if !change.Any() {
		e.logger.Debug("weather unchanged", zap.Uint64("seq", e.state.Seq))
		return nil
	}
	observability.WeatherUpdatesTotal.Inc()
	e.logger.Info("weather updated",
		zap.String("changed", change.String()),
		zap.Stringer("condition", e.state.Condition),
		zap.Stringer("temperature", e.state.Temperature),
		zap.String("city", e.state.City),
		zap.Uint64("seq", e.state.Seq))
	e.resolve()
	return nil
}

func (e *Engine) reconfigure(s *Settings) error {
	if s == nil {
		return errors.New("reconfigure: no settings")
	}
	if err := s.Policy.Validate(); err != nil {
		e.logger.Warn("reconfigure rejected", zap.Error(err))
		return fmt.Errorf("reconfigure: %w", err)
	}
	e.policy = s.Policy
	e.clock24h = s.Clock24h
	e.logger.Info("engine reconfigured", zap.Bool("clock_24h", s.Clock24h))
	e.resolve()
	return nil
}

func (e *Engine) resolve() {
	next := e.policy.Resolve(e.state)
	prev := e.outfit
	if next == prev {
		return
	}
	if next.Head != prev.Head {
		observability.OutfitChangesTotal.WithLabelValues("head").Inc()
	}
	if next.Chest != prev.Chest {
		observability.OutfitChangesTotal.WithLabelValues("chest").Inc()
	}
	if next.Legs != prev.Legs {
		observability.OutfitChangesTotal.WithLabelValues("legs").Inc()
	}
	if next.Umbrella != prev.Umbrella {
		observability.OutfitChangesTotal.WithLabelValues("umbrella").Inc()
	}
	e.outfit = next
	e.logger.Info("outfit changed", zap.Stringer("from", prev), zap.Stringer("to", next))
}

func (e *Engine) publish(now time.Time) {
	e.view.Store(newView(e.state, e.outfit, e.scheduler.State().String(), now, e.clock24h))
}
