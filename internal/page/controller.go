// Package page drives one connected drawing page: it owns the page's raster
// surface and result renderer and moves them through the page lifecycle in
// response to user events and model readiness.
package page

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lucijabrocic/digit-recognizer/internal/canvas"
	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
	"github.com/lucijabrocic/digit-recognizer/internal/model"
	"github.com/lucijabrocic/digit-recognizer/internal/preprocess"
	"github.com/lucijabrocic/digit-recognizer/internal/result"
)

// ModelSource is the process-wide model handle. *model.Loader satisfies it.
type ModelSource interface {
	Done() <-chan struct{}
	Model() (model.Classifier, error)
}

// Predictor runs a classifier on a preprocessed input. *model.Invoker satisfies it.
type Predictor interface {
	Predict(clf model.Classifier, in *model.Tensor) (model.Probabilities, error)
}

// Sink delivers messages to the browser. Emit is only called from Run.
type Sink interface {
	Emit(kind string, payload any) error
}

type EventType string

const (
	EventDown    EventType = "down"
	EventMove    EventType = "move"
	EventUp      EventType = "up"
	EventLeave   EventType = "leave"
	EventClear   EventType = "clear"
	EventPredict EventType = "predict"
)

// Event is a client message. X and Y are canvas pixel coordinates.
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Source string    `json:"source,omitempty"`
}

// Server message kinds.
const (
	KindState      = "state"
	KindReady      = "ready"
	KindLoadFailed = "load_failed"
	KindNotice     = "notice"
)

// Notice kinds.
const (
	NoticeLoading     = "loading"
	NoticeBusy        = "busy"
	NoticeUnavailable = "unavailable"
	NoticeFailed      = "prediction_failed"
)

const (
	msgLoading    = "Model is still loading..."
	msgBusy       = "A prediction is already running."
	msgLoadFailed = "Failed to load the AI model. Please reload the page."
	msgFailed     = "Prediction failed. Please try again."
)

type StatePayload struct {
	State      State `json:"state"`
	CanPredict bool  `json:"canPredict"`
}

type NoticePayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Config struct {
	Canvas canvas.Options
	TopK   int
}

type Option func(*Controller)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

type prediction struct {
	probs   model.Probabilities
	err     error
	elapsed time.Duration
}

// Controller is the context of a single page. All fields are owned by the
// Run goroutine; other goroutines talk to it through Submit.
type Controller struct {
	surface   *canvas.Surface
	models    ModelSource
	predictor Predictor
	renderer  *result.Renderer
	sink      Sink
	metrics   *metrics.Metrics
	log       zerolog.Logger

	state   State
	ready   <-chan struct{}
	events  chan Event
	results chan prediction
}

func New(cfg Config, models ModelSource, predictor Predictor, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		surface:   canvas.New(cfg.Canvas),
		models:    models,
		predictor: predictor,
		renderer:  result.NewRenderer(sink, cfg.TopK),
		sink:      sink,
		log:       log.Logger,
		state:     StateLoading,
		events:    make(chan Event, 64),
		// one prediction at most is in flight
		results: make(chan prediction, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit queues ev for the event loop.
func (c *Controller) Submit(ctx context.Context, ev Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled or the sink fails.
func (c *Controller) Run(ctx context.Context) error {
	if c.metrics != nil {
		c.metrics.ActivePages.Inc()
		defer c.metrics.ActivePages.Dec()
	}

	if err := c.emitState(); err != nil {
		return err
	}

	c.ready = c.models.Done()
	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-c.ready:
			err = c.onModelResolved()
		case ev := <-c.events:
			// the load may have finished while this event was queued
			if err = c.pollModel(); err == nil {
				err = c.handle(ev)
			}
		case p := <-c.results:
			err = c.onPredicted(p)
		}
		if err != nil {
			return err
		}
	}
}

func (c *Controller) handle(ev Event) error {
	if c.state == StatePredicting && ev.Type != EventPredict {
		c.log.Debug().Str("event", string(ev.Type)).Msg("Dropping event while predicting")
		return nil
	}

	switch ev.Type {
	case EventDown:
		return c.beginStroke(canvas.Point{X: ev.X, Y: ev.Y})
	case EventMove:
		if c.state == StateDrawing {
			c.surface.ExtendStroke(canvas.Point{X: ev.X, Y: ev.Y})
		}
		return nil
	case EventUp, EventLeave:
		return c.endStroke()
	case EventClear:
		return c.clear()
	case EventPredict:
		return c.predict()
	default:
		c.log.Debug().Str("event", string(ev.Type)).Msg("Ignoring unknown page event")
		return nil
	}
}

func (c *Controller) beginStroke(p canvas.Point) error {
	c.surface.BeginStroke(p)
	return c.setState(StateDrawing)
}

func (c *Controller) endStroke() error {
	if c.state != StateDrawing {
		return nil
	}
	c.surface.EndStroke()
	return c.setState(c.restingState())
}

func (c *Controller) clear() error {
	c.surface.Reset()
	if err := c.renderer.Reset(); err != nil {
		return err
	}
	return c.setState(c.restingState())
}

// restingState is where the page settles when nothing is in progress.
func (c *Controller) restingState() State {
	if _, err := c.models.Model(); err != nil {
		return StateLoading
	}
	if c.renderer.Visible() {
		return StateResultShown
	}
	return StateIdle
}

func (c *Controller) predict() error {
	if c.state == StatePredicting {
		return c.notice(NoticeBusy, msgBusy)
	}

	clf, err := c.models.Model()
	if errors.Is(err, model.ErrNotReady) {
		return c.notice(NoticeLoading, msgLoading)
	}
	if err != nil {
		return c.notice(NoticeUnavailable, msgLoadFailed)
	}

	if c.state == StateDrawing {
		c.surface.EndStroke()
	}

	in := preprocess.Preprocess(c.surface.Image())
	if err := c.setState(StatePredicting); err != nil {
		in.Release()
		return err
	}

	go func() {
		start := time.Now()
		probs, err := c.predictor.Predict(clf, in)
		c.results <- prediction{probs: probs, err: err, elapsed: time.Since(start)}
	}()
	return nil
}

func (c *Controller) onPredicted(p prediction) error {
	if p.err != nil {
		c.log.Error().Err(p.err).Msg("Prediction failed")
		if err := c.notice(NoticeFailed, msgFailed); err != nil {
			return err
		}
		return c.setState(c.restingState())
	}

	view, err := c.renderer.Show(p.probs)
	if err != nil {
		return err
	}
	c.log.Info().
		Int("digit", view.Digit).
		Str("confidence", view.Confidence).
		Dur("elapsed", p.elapsed).
		Msg("Prediction shown")
	return c.setState(StateResultShown)
}

func (c *Controller) pollModel() error {
	select {
	case <-c.ready:
		return c.onModelResolved()
	default:
		return nil
	}
}

func (c *Controller) onModelResolved() error {
	c.ready = nil
	if _, err := c.models.Model(); err != nil {
		if err := c.sink.Emit(KindLoadFailed, NoticePayload{Kind: NoticeUnavailable, Message: msgLoadFailed}); err != nil {
			return fmt.Errorf("send load failure: %w", err)
		}
		return nil
	}

	if err := c.sink.Emit(KindReady, nil); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}
	if c.state == StateLoading {
		return c.setState(StateIdle)
	}
	return c.emitState()
}

func (c *Controller) setState(to State) error {
	if to == c.state {
		return nil
	}
	next, err := Transition(c.state, to)
	if err != nil {
		return err
	}
	c.log.Debug().Str("from", string(c.state)).Str("to", string(next)).Msg("Page state")
	c.state = next
	return c.emitState()
}

func (c *Controller) emitState() error {
	_, err := c.models.Model()
	payload := StatePayload{
		State:      c.state,
		CanPredict: err == nil && c.state != StatePredicting,
	}
	if err := c.sink.Emit(KindState, payload); err != nil {
		return fmt.Errorf("send state: %w", err)
	}
	return nil
}

func (c *Controller) notice(kind, message string) error {
	if c.metrics != nil {
		c.metrics.Notice(kind)
	}
	if err := c.sink.Emit(KindNotice, NoticePayload{Kind: kind, Message: message}); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}
