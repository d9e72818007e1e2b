package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	runFn   func(ctx context.Context) error
	order   *[]string
	mu      *sync.Mutex
	name    string
}

func (m *mockService) Run(ctx context.Context) error {
	m.started.Store(true)
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
	if m.order != nil {
		m.mu.Lock()
		*m.order = append(*m.order, m.name)
		m.mu.Unlock()
	}
}

func runAsync(lc *Lifecycle, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
		return nil
	}
}

func TestLifecycleStopsInReverseOrderOnCancel(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := &mockService{name: "svc1", order: &order, mu: &mu}
	svc2 := &mockService{name: "svc2", order: &order, mu: &mu}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(lc, ctx)
	require.Eventually(t, func() bool { return svc1.started.Load() && svc2.started.Load() }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, []string{"svc2", "svc1"}, order)
}

func TestLifecycleEndsWhenAnyServiceReturns(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	waiter := &mockService{}
	lc.Add("waiter", waiter)
	lc.Add("input", &FuncService{RunFn: func(context.Context) error { return nil }})

	assert.NoError(t, waitDone(t, runAsync(lc, context.Background())))
	assert.True(t, waiter.stopped.Load())
}

func TestLifecycleReturnsServiceError(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	boom := errors.New("boom")
	lc.Add("waiter", &mockService{})
	lc.Add("broken", &mockService{runFn: func(context.Context) error { return boom }})

	err := waitDone(t, runAsync(lc, context.Background()))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "service broken")
}

func TestFuncService(t *testing.T) {
	var ran, stopped bool
	svc := &FuncService{
		RunFn:  func(context.Context) error { ran = true; return nil },
		StopFn: func() { stopped = true },
	}
	require.NoError(t, svc.Run(context.Background()))
	svc.Stop()
	assert.True(t, ran)
	assert.True(t, stopped)

	(&FuncService{RunFn: func(context.Context) error { return nil }}).Stop()
}
