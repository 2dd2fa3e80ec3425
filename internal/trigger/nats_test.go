package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingHandler struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (b *blockingHandler) OnTick(_ context.Context, _ ...Tick) (PipelineResult, error) {
	close(b.started)
	<-b.release
	b.finished.Store(true)
	return PipelineResult{}, nil
}

func TestSubscriberWaitBlocksUntilInFlightTickFinishes(t *testing.T) {
	handler := &blockingHandler{started: make(chan struct{}), release: make(chan struct{})}
	s := NewSubscriber(nil, "prices.*", handler, 1)

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.work(ctx, s.workers[0])

	s.workers[0] <- Tick{Symbol: "ACME", Price: d("101")}
	select {
	case <-handler.started:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "tick was never handled")
	}

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
		require.FailNow(t, "Wait returned while a tick was still being handled")
	case <-time.After(20 * time.Millisecond):
	}

	close(handler.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Wait did not return after the worker stopped")
	}
	assert.True(t, handler.finished.Load())
}

func TestSubscriberShardsBySymbol(t *testing.T) {
	s := NewSubscriber(nil, "prices.*", &blockingHandler{}, 4)
	assert.Equal(t, s.shard("ACME"), s.shard("ACME"))
	assert.Less(t, s.shard("GBPUSD"), 4)
}
