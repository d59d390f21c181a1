package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
	queuememory "github.com/tastewell/harvester/internal/queue/memory"
	"github.com/tastewell/harvester/internal/worker"
)

func TestDispatcherRunStopsWorkers(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(4)
	workers := []*worker.Worker{
		worker.New(queue, nil, zap.NewNop()),
		worker.New(queue, nil, zap.NewNop()),
	}
	d := New(queue, workers)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherEnqueue(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(1)
	d := New(queue, nil)

	item := harvest.QueueItem{JobID: uuid.New(), EnqueuedAt: time.Now()}
	require.NoError(t, d.Enqueue(context.Background(), item))

	// Queue is full now, so a dead context surfaces as an enqueue error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, d.Enqueue(ctx, harvest.QueueItem{JobID: uuid.New()}))

	got, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, item.JobID, got.JobID)
}
