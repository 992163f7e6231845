package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ceroai/appointment-reminder-calls/internal/observability/metrics"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

// ErrNotFound is returned when a call has neither cached audio nor a session
// to synthesize from.
var ErrNotFound = errors.New("no audio available for call")

// Synthesizer converts text to speech audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ScriptSource resolves the spoken script for a live call. The session store
// provides this.
type ScriptSource interface {
	Script(callID string) (string, bool)
}

// Service serves call audio: cached bytes when the background synthesis beat
// the patient to answering, on-demand synthesis otherwise.
type Service struct {
	cache   *Cache
	synth   Synthesizer
	scripts ScriptSource
	logger  *logging.Logger
	metrics *metrics.CallMetrics
}

// NewService wires an audio service. Metrics may be nil.
func NewService(cache *Cache, synth Synthesizer, scripts ScriptSource, logger *logging.Logger, m *metrics.CallMetrics) *Service {
	if cache == nil {
		panic("audio: cache cannot be nil")
	}
	if synth == nil {
		panic("audio: synthesizer cannot be nil")
	}
	if scripts == nil {
		panic("audio: script source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		cache:   cache,
		synth:   synth,
		scripts: scripts,
		logger:  logger,
		metrics: m,
	}
}

// Get returns the audio for a call. Cache misses for live sessions fall back
// to synchronous synthesis; the result is returned without being cached, the
// background worker owns cache population.
func (s *Service) Get(ctx context.Context, callID string) ([]byte, error) {
	if data, ok := s.cache.Get(callID); ok {
		s.metrics.ObserveAudioServe("cache")
		return data, nil
	}

	script, ok := s.scripts.Script(callID)
	if !ok {
		return nil, ErrNotFound
	}

	s.logger.Info("audio cache miss, synthesizing on demand", "call_id", callID)
	data, err := s.Synthesize(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("audio: on-demand synthesis for call %s: %w", callID, err)
	}
	s.metrics.ObserveAudioServe("on_demand")
	return data, nil
}

// Synthesize converts text to speech, recording duration and failures.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	start := time.Now()
	data, err := s.synth.Synthesize(ctx, text)
	s.metrics.ObserveSynthesisDuration(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ObserveSynthesisFailure()
		return nil, err
	}
	return data, nil
}

// Prime synthesizes the script for a call and caches the result. Used by the
// background workers between dial and answer.
func (s *Service) Prime(ctx context.Context, callID, text string) error {
	data, err := s.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("audio: prime call %s: %w", callID, err)
	}
	s.cache.Put(callID, data)
	s.logger.Info("audio cached for call", "call_id", callID, "bytes", len(data))
	return nil
}

// Evict releases the cached audio for one call.
func (s *Service) Evict(callID string) {
	s.cache.Evict(callID)
}
