package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
)

// ErrNotReady is returned by Loader.Model while the load is in flight.
var ErrNotReady = errors.New("model is still loading")

type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// ArtifactCache keeps downloaded artifacts across restarts.
type ArtifactCache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
	FetchedAt(key string) (time.Time, bool, error)
}

type LoaderConfig struct {
	URL          string
	FetchTimeout time.Duration
	Open         OpenOptions
}

// Loader fetches and deserializes the classifier exactly once. Readers
// wait on Done; the handle is published before Done is closed.
type Loader struct {
	cfg     LoaderConfig
	client  *resty.Client
	cache   ArtifactCache
	metrics *metrics.Metrics
	open    Opener

	once sync.Once
	done chan struct{}
	clf  Classifier
	err  error
}

type LoaderOption func(*Loader)

func WithCache(c ArtifactCache) LoaderOption {
	return func(l *Loader) { l.cache = c }
}

func WithMetrics(m *metrics.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

func WithOpener(open Opener) LoaderOption {
	return func(l *Loader) { l.open = open }
}

func NewLoader(cfg LoaderConfig, opts ...LoaderOption) *Loader {
	client := resty.New()
	if cfg.FetchTimeout > 0 {
		client.SetTimeout(cfg.FetchTimeout)
	} else {
		client.SetTimeout(60 * time.Second)
	}

	l := &Loader{
		cfg:    cfg,
		client: client,
		open:   Open,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins the load in the background. Only the first call has any effect.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		go l.load(ctx)
	})
}

// Done is closed once the load has succeeded or failed.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Model returns the loaded classifier, ErrNotReady while loading, or the load error.
func (l *Loader) Model() (Classifier, error) {
	select {
	case <-l.done:
		return l.clf, l.err
	default:
		return nil, ErrNotReady
	}
}

func (l *Loader) Status() Status {
	select {
	case <-l.done:
		if l.err != nil {
			return StatusFailed
		}
		return StatusReady
	default:
		return StatusLoading
	}
}

// Close releases the classifier if the load has completed.
func (l *Loader) Close() error {
	select {
	case <-l.done:
		if l.clf != nil {
			return l.clf.Close()
		}
	default:
	}
	return nil
}

func (l *Loader) load(ctx context.Context) {
	defer close(l.done)

	start := time.Now()
	log.Info().Str("url", l.cfg.URL).Str("backend", l.cfg.Open.Backend).Msg("Loading model")

	clf, err := l.fetchAndOpen(ctx)
	elapsed := time.Since(start)
	if l.metrics != nil {
		l.metrics.ObserveLoad(elapsed.Seconds(), err == nil)
	}

	if err != nil {
		l.err = err
		log.Error().Err(err).Str("url", l.cfg.URL).Msg("Model load failed, prediction disabled")
		return
	}

	l.clf = clf
	log.Info().
		Str("url", l.cfg.URL).
		Dur("elapsed", elapsed).
		Strs("classes", l.cfg.Open.Metadata.Classes).
		Msg("Model loaded")
}

func (l *Loader) fetchAndOpen(ctx context.Context) (Classifier, error) {
	data, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}

	clf, err := l.open(data, l.cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize model: %w", err)
	}
	return clf, nil
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	u := l.cfg.URL
	if !isRemote(u) {
		data, err := os.ReadFile(strings.TrimPrefix(u, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
		return data, nil
	}

	if l.cache != nil {
		data, ok, err := l.cache.Get(u)
		if err != nil {
			log.Warn().Err(err).Msg("Model cache read failed, fetching")
		} else if ok {
			event := log.Info().Str("url", u).Int("bytes", len(data))
			if fetched, found, err := l.cache.FetchedAt(u); err == nil && found {
				event = event.Time("fetched_at", fetched)
			}
			event.Msg("Model served from cache")
			return data, nil
		}
	}

	resp, err := l.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch model: unexpected status %s", resp.Status())
	}

	data := resp.Body()
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}

	if l.cache != nil {
		if err := l.cache.Put(u, data); err != nil {
			log.Warn().Err(err).Msg("Model cache write failed")
		}
	}
	return data, nil
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
