package audio

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

type stubSynth struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
}

func (s *stubSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	data, err := s.data, s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *stubSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type scriptMap map[string]string

func (m scriptMap) Script(callID string) (string, bool) {
	script, ok := m[callID]
	return script, ok
}

func newTestService(synth *stubSynth, scripts scriptMap) (*Service, *Cache) {
	cache := NewCache()
	logger := logging.NewWithWriter("error", io.Discard)
	return NewService(cache, synth, scripts, logger, nil), cache
}

func TestServiceGetCacheHit(t *testing.T) {
	synth := &stubSynth{data: []byte("fresh")}
	svc, cache := newTestService(synth, scriptMap{})
	cache.Put("call-1", []byte("cached"))

	data, err := svc.Get(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "cached" {
		t.Errorf("unexpected data %q", data)
	}
	if synth.callCount() != 0 {
		t.Errorf("cache hit must not synthesize, got %d calls", synth.callCount())
	}
}

func TestServiceGetOnDemandFallback(t *testing.T) {
	synth := &stubSynth{data: []byte("generated")}
	svc, cache := newTestService(synth, scriptMap{"call-1": "Hola paciente"})

	data, err := svc.Get(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "generated" {
		t.Errorf("unexpected data %q", data)
	}
	if synth.callCount() != 1 {
		t.Errorf("expected one synthesis, got %d", synth.callCount())
	}

	// On-demand results are not cached; the background worker owns the cache.
	if _, ok := cache.Get("call-1"); ok {
		t.Error("on-demand synthesis must not populate the cache")
	}
}

func TestServiceGetNotFound(t *testing.T) {
	svc, _ := newTestService(&stubSynth{data: []byte("x")}, scriptMap{})

	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceGetSynthesisError(t *testing.T) {
	synth := &stubSynth{err: errors.New("quota exceeded")}
	svc, _ := newTestService(synth, scriptMap{"call-1": "Hola"})

	_, err := svc.Get(context.Background(), "call-1")
	if err == nil {
		t.Fatal("expected synthesis error")
	}
	if !strings.Contains(err.Error(), "call-1") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestServicePrime(t *testing.T) {
	synth := &stubSynth{data: []byte("primed")}
	svc, cache := newTestService(synth, scriptMap{})

	if err := svc.Prime(context.Background(), "call-1", "Hola"); err != nil {
		t.Fatalf("prime: %v", err)
	}
	data, ok := cache.Get("call-1")
	if !ok || string(data) != "primed" {
		t.Errorf("expected primed cache entry, got %q, %v", data, ok)
	}
}

func TestServicePrimeError(t *testing.T) {
	synth := &stubSynth{err: errors.New("boom")}
	svc, cache := newTestService(synth, scriptMap{})

	if err := svc.Prime(context.Background(), "call-1", "Hola"); err == nil {
		t.Fatal("expected prime error")
	}
	if _, ok := cache.Get("call-1"); ok {
		t.Error("failed prime must not cache")
	}
}

func TestServiceEvict(t *testing.T) {
	svc, cache := newTestService(&stubSynth{data: []byte("x")}, scriptMap{})
	cache.Put("call-1", []byte("cached"))

	svc.Evict("call-1")
	if _, ok := cache.Get("call-1"); ok {
		t.Error("expected entry evicted")
	}
}
