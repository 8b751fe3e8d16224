package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vklemos/alicerce/internal/core/ports"
)

var errFakeBackendDown = errors.New("fake backend down")

type fakeEntry struct {
	value     int64
	str       string
	isString  bool
	expiresAt time.Time
	hasTTL    bool
}

// fakeKV emula o backend remoto com relógio controlável, para exercitar TTLs
// sem esperar tempo real.
type fakeKV struct {
	mu      sync.Mutex
	now     time.Time
	enabled bool
	failing bool
	data    map[string]*fakeEntry
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		now:     time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
		enabled: true,
		data:    make(map[string]*fakeEntry),
	}
}

func (f *fakeKV) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeKV) Enabled() bool { return f.enabled }

func (f *fakeKV) live(key string) (*fakeEntry, bool) {
	e, ok := f.data[key]
	if !ok {
		return nil, false
	}
	if e.hasTTL && !e.expiresAt.After(f.now) {
		delete(f.data, key)
		return nil, false
	}
	return e, true
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", false, errFakeBackendDown
	}
	e, ok := f.live(key)
	if !ok {
		return "", false, nil
	}
	if e.isString {
		return e.str, true, nil
	}
	return strconv.FormatInt(e.value, 10), true, nil
}

func (f *fakeKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, errFakeBackendDown
	}
	return f.setNXLocked(key, value, ttl), nil
}

func (f *fakeKV) setNXLocked(key, value string, ttl time.Duration) bool {
	if _, ok := f.live(key); ok {
		return false
	}
	f.data[key] = &fakeEntry{str: value, isString: true, expiresAt: f.now.Add(ttl), hasTTL: true}
	return true
}

func (f *fakeKV) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errFakeBackendDown
	}
	return f.incrByLocked(key, delta), nil
}

func (f *fakeKV) incrByLocked(key string, delta int64) int64 {
	e, ok := f.live(key)
	if !ok {
		e = &fakeEntry{}
		f.data[key] = e
	}
	e.value += delta
	return e.value
}

func (f *fakeKV) Expire(_ context.Context, key string, ttl time.Duration, onlyIfNoTTL bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false, errFakeBackendDown
	}
	return f.expireLocked(key, ttl, onlyIfNoTTL), nil
}

func (f *fakeKV) expireLocked(key string, ttl time.Duration, onlyIfNoTTL bool) bool {
	e, ok := f.live(key)
	if !ok {
		return false
	}
	if onlyIfNoTTL && e.hasTTL {
		return false
	}
	e.hasTTL = true
	e.expiresAt = f.now.Add(ttl)
	return true
}

func (f *fakeKV) Pipeline(_ context.Context, cmds []ports.Command) ([]ports.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errFakeBackendDown
	}

	results := make([]ports.Result, 0, len(cmds))
	for _, cmd := range cmds {
		switch cmd.Op {
		case ports.OpGet:
			e, ok := f.live(cmd.Key)
			if !ok {
				results = append(results, ports.Result{})
				continue
			}
			str := e.str
			if !e.isString {
				str = strconv.FormatInt(e.value, 10)
			}
			results = append(results, ports.Result{Str: str, Found: true})
		case ports.OpIncrBy:
			results = append(results, ports.Result{Int: f.incrByLocked(cmd.Key, cmd.Delta), Found: true})
		case ports.OpSetNX:
			results = append(results, ports.Result{Ok: f.setNXLocked(cmd.Key, cmd.Value, cmd.TTL), Found: true})
		case ports.OpExpireNX:
			results = append(results, ports.Result{Ok: f.expireLocked(cmd.Key, cmd.TTL, true), Found: true})
		case ports.OpPTTL:
			e, ok := f.live(cmd.Key)
			if !ok || !e.hasTTL {
				results = append(results, ports.Result{})
				continue
			}
			results = append(results, ports.Result{TTL: e.expiresAt.Sub(f.now), Found: true})
		default:
			return nil, errors.New("unsupported op in fakeKV: " + string(cmd.Op))
		}
	}
	return results, nil
}

func (f *fakeKV) Ping(context.Context) error {
	if f.failing {
		return errFakeBackendDown
	}
	return nil
}

// fakeFallback implementa ports.FallbackStore sobre mapas simples, com o
// mesmo relógio controlável do fakeKV.
type fakeFallback struct {
	mu       sync.Mutex
	now      func() time.Time
	windows  map[string]*fbWindow
	claims   map[string]time.Time
	counters map[string]*fbCounter
}

type fbWindow struct {
	count   int64
	resetAt time.Time
}

type fbCounter struct {
	value     int64
	expiresAt time.Time
}

func newFakeFallback(clock func() time.Time) *fakeFallback {
	return &fakeFallback{
		now:      clock,
		windows:  make(map[string]*fbWindow),
		claims:   make(map[string]time.Time),
		counters: make(map[string]*fbCounter),
	}
}

func (f *fakeFallback) IncrWindow(key string, window time.Duration) (int64, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	w, ok := f.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &fbWindow{resetAt: now.Add(window)}
		f.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt
}

func (f *fakeFallback) SetNX(key string, ttl time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if expiresAt, ok := f.claims[key]; ok && expiresAt.After(now) {
		return false
	}
	f.claims[key] = now.Add(ttl)
	return true
}

func (f *fakeFallback) IncrBy(key string, delta int64, ttl time.Duration) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	c, ok := f.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = &fbCounter{expiresAt: now.Add(ttl)}
		f.counters[key] = c
	}
	c.value += delta
	return c.value
}

func (f *fakeFallback) Get(key string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counters[key]
	if !ok || !c.expiresAt.After(f.now()) {
		return 0, false
	}
	return c.value, true
}

// recordingHandler captura registros de log para os testes observarem avisos.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) warnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, r := range h.records {
		if r.Level >= slog.LevelWarn {
			count++
		}
	}
	return count
}
