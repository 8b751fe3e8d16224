package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vklemos/alicerce/internal/core/ports"
)

func newTestMetrics(t *testing.T, kv *fakeKV) *MetricsService {
	t.Helper()
	clock := func() time.Time {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return kv.now
	}
	svc, err := NewMetricsService(kv, newFakeFallback(clock), nil)
	require.NoError(t, err)
	svc.now = clock
	return svc
}

func TestMetricsIncrementAndReadWindow(t *testing.T) {
	kv := newFakeKV()
	svc := newTestMetrics(t, kv)

	svc.Increment("requests_total", 2)
	svc.Increment("requests_total", 3)
	require.NoError(t, svc.Close())

	total, err := svc.ReadWindow(context.Background(), "requests_total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestMetricsReadWindowSpansHours(t *testing.T) {
	kv := newFakeKV()
	svc := newTestMetrics(t, kv)

	svc.Increment("requests_total", 1)
	require.NoError(t, svc.Close())

	kv.advance(time.Hour)
	svc.Increment("requests_total", 4)
	require.NoError(t, svc.Close())

	ctx := context.Background()

	total, err := svc.ReadWindow(ctx, "requests_total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total, "one-hour window only sees the current bucket")

	total, err = svc.ReadWindow(ctx, "requests_total", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestMetricsIncrementIgnoresNoops(t *testing.T) {
	kv := newFakeKV()
	svc := newTestMetrics(t, kv)

	svc.Increment("", 10)
	svc.Increment("requests_total", 0)
	require.NoError(t, svc.Close())

	total, err := svc.ReadWindow(context.Background(), "requests_total", 1)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMetricsFallBackWhenBackendFails(t *testing.T) {
	kv := newFakeKV()
	kv.failing = true
	clock := func() time.Time {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return kv.now
	}
	handler := &recordingHandler{}
	svc, err := NewMetricsService(kv, newFakeFallback(clock), slog.New(handler))
	require.NoError(t, err)
	svc.now = clock

	svc.Increment("requests_total", 7)
	svc.Increment("requests_total", 2)
	require.NoError(t, svc.Close())

	total, err := svc.ReadWindow(context.Background(), "requests_total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), total)
	assert.Equal(t, 1, handler.warnCount(), "fallback warning fires once per process")
}

// blockingKV segura cada Pipeline até release ser fechado, simulando um backend
// lento com os trabalhadores de métricas ocupados.
type blockingKV struct {
	*fakeKV
	release chan struct{}
}

func (b *blockingKV) Pipeline(ctx context.Context, cmds []ports.Command) ([]ports.Result, error) {
	<-b.release
	return b.fakeKV.Pipeline(ctx, cmds)
}

func TestMetricsIncrementDoesNotBlockWhenSaturated(t *testing.T) {
	kv := newFakeKV()
	blocked := &blockingKV{fakeKV: kv, release: make(chan struct{})}
	clock := func() time.Time {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return kv.now
	}
	svc, err := NewMetricsService(blocked, newFakeFallback(clock), nil)
	require.NoError(t, err)
	svc.now = clock

	released := false
	releaseWorkers := func() {
		if !released {
			released = true
			close(blocked.release)
		}
	}
	defer releaseWorkers()

	for i := 0; i < metricsWorkers; i++ {
		svc.Increment("requests_total", 1)
	}

	done := make(chan struct{})
	go func() {
		svc.Increment("requests_total", 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Increment blocked the caller while all workers were busy")
	}

	releaseWorkers()
	require.NoError(t, svc.Close())

	total, err := svc.ReadWindow(context.Background(), "requests_total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(metricsWorkers), total, "the extra sample is dropped, not queued")
}
