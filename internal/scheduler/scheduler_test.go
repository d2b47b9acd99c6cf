package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerRejectsBadTasks(t *testing.T) {
	noop := func(context.Context) error { return nil }

	_, err := NewScheduler(0)
	assert.Error(t, err)

	_, err = NewScheduler(time.Second, Task{Name: "vacuum", Every: time.Second})
	assert.Error(t, err)

	_, err = NewScheduler(time.Second, Task{Name: "vacuum", Run: noop})
	assert.Error(t, err)

	_, err = NewScheduler(time.Second, Task{Name: "vacuum", Every: time.Second, Run: noop})
	assert.NoError(t, err)
}

func TestIsTaskDue(t *testing.T) {
	instance, err := NewScheduler(time.Second, Task{
		Name: "reconcile", Every: 10 * time.Second, Run: func(context.Context) error { return nil },
	})
	require.NoError(t, err)
	impl := instance.(*schedulerImpl)
	entry := impl.tasks[0]

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, impl.isTaskDue(entry, base), "never run")

	entry.status.LastRunAt = base
	assert.False(t, impl.isTaskDue(entry, base.Add(5*time.Second)))
	assert.True(t, impl.isTaskDue(entry, base.Add(9600*time.Millisecond)), "within tolerance")
	assert.True(t, impl.isTaskDue(entry, base.Add(11*time.Second)))
}

func TestProcessTickRecordsOutcome(t *testing.T) {
	var calls atomic.Int32
	instance, err := NewScheduler(time.Second,
		Task{Name: "ok", Every: time.Minute, Run: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
		Task{Name: "broken", Every: time.Minute, Run: func(context.Context) error {
			return errors.New("store offline")
		}},
		Task{Name: "panics", Every: time.Minute, Run: func(context.Context) error {
			panic("boom")
		}},
	)
	require.NoError(t, err)
	impl := instance.(*schedulerImpl)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return base }

	impl.processTick(context.Background())
	impl.processTick(context.Background())
	assert.Equal(t, int32(1), calls.Load(), "not due again within the period")

	statuses := instance.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "ok", statuses[0].Name)
	assert.Equal(t, uint64(1), statuses[0].Runs)
	assert.Empty(t, statuses[0].LastError)
	assert.Equal(t, "store offline", statuses[1].LastError)
	assert.Contains(t, statuses[2].LastError, "boom")

	impl.now = func() time.Time { return base.Add(time.Minute) }
	impl.processTick(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestStartStopRunsTasks(t *testing.T) {
	ran := make(chan struct{}, 16)
	instance, err := NewScheduler(10*time.Millisecond, Task{
		Name:  "vacuum",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, instance.Start(context.Background()))
	require.NoError(t, instance.Start(context.Background()))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	stopContext, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, instance.Stop(stopContext))
	require.NoError(t, instance.Stop(stopContext))
}

func TestStopCancelsRunningTask(t *testing.T) {
	entered := make(chan struct{})
	instance, err := NewScheduler(5*time.Millisecond, Task{
		Name:  "reconcile",
		Every: time.Hour,
		Run: func(ctx context.Context) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.NoError(t, err)
	require.NoError(t, instance.Start(context.Background()))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	stopContext, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, instance.Stop(stopContext))
}
