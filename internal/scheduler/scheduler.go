// Package scheduler runs the periodic maintenance of the xApp.
//
// The scheduler is responsible for:
//   - Ticking at a fixed interval in a background goroutine
//   - Deciding which tasks are due based on their own period
//   - Running due tasks one after the other, never two at once
//
// A task that has never run is due at the first tick. A failing task is
// logged and retried at its next period.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/free5gc/hwxapp/internal/logger"
)

// Task is one periodic job.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// TaskStatus is the bookkeeping of one task.
type TaskStatus struct {
	Name      string    `json:"name"`
	LastRunAt time.Time `json:"lastRunAt"`
	LastError string    `json:"lastError,omitempty"`
	Runs      uint64    `json:"runs"`
}

// Scheduler controls periodic maintenance tasks.
type Scheduler interface {
	// Start launches the scheduler loop in a background goroutine. It returns
	// immediately after successful start. The provided context is used only
	// for initialisation; cancellation should be signalled via Stop().
	Start(ctx context.Context) error

	// Stop requests the scheduler to stop and waits for the background loop
	// to exit. It is safe to call Stop() multiple times.
	Stop(ctx context.Context) error

	// Statuses returns a copy of the task bookkeeping in registration order.
	Statuses() []TaskStatus
}

type taskEntry struct {
	task   Task
	status TaskStatus
}

// schedulerImpl is the concrete implementation of Scheduler.
type schedulerImpl struct {
	// tickInterval controls how often we evaluate tasks.
	tickInterval time.Duration
	// delayTolerance is a soft margin used when deciding if a task is due
	// (Every - delayTolerance), so that tick jitter does not skip a period.
	delayTolerance time.Duration

	mutexForTasks sync.Mutex
	tasks         []*taskEntry

	startStopMutex sync.Mutex
	started        bool
	stopChannel    chan struct{}
	stoppedChannel chan struct{}
	cancelRun      context.CancelFunc

	now func() time.Time
}

// NewScheduler creates a new Scheduler instance. Tasks with a non-positive
// period or no Run function are rejected.
func NewScheduler(tickInterval time.Duration, tasks ...Task) (Scheduler, error) {
	if tickInterval <= 0 {
		return nil, errors.Errorf("scheduler tick interval must be positive, got %s", tickInterval)
	}

	entries := make([]*taskEntry, 0, len(tasks))
	for _, task := range tasks {
		if task.Run == nil {
			return nil, errors.Errorf("task %q has no run function", task.Name)
		}
		if task.Every <= 0 {
			return nil, errors.Errorf("task %q period must be positive, got %s", task.Name, task.Every)
		}
		entries = append(entries, &taskEntry{task: task, status: TaskStatus{Name: task.Name}})
	}

	return &schedulerImpl{
		tickInterval:   tickInterval,
		delayTolerance: tickInterval / 2,
		tasks:          entries,
		stopChannel:    make(chan struct{}),
		stoppedChannel: make(chan struct{}),
		now:            time.Now,
	}, nil
}

// Start implements Scheduler.Start.
func (schedulerInstance *schedulerImpl) Start(ctx context.Context) error {
	schedulerInstance.startStopMutex.Lock()
	defer schedulerInstance.startStopMutex.Unlock()

	if schedulerInstance.started {
		logger.SchedulerLog.Warn("Scheduler.Start called more than once; ignoring subsequent call")
		return nil
	}

	schedulerInstance.started = true

	runContext, cancel := context.WithCancel(context.Background())
	schedulerInstance.cancelRun = cancel

	go schedulerInstance.runLoop(runContext)

	logger.SchedulerLog.Infof("Scheduler started (tick=%s tasks=%d)",
		schedulerInstance.tickInterval, len(schedulerInstance.tasks))
	return nil
}

// Stop implements Scheduler.Stop.
func (schedulerInstance *schedulerImpl) Stop(ctx context.Context) error {
	schedulerInstance.startStopMutex.Lock()
	defer schedulerInstance.startStopMutex.Unlock()

	if !schedulerInstance.started {
		return nil
	}

	select {
	case <-schedulerInstance.stopChannel:
		// Already closing or closed.
	default:
		close(schedulerInstance.stopChannel)
		schedulerInstance.cancelRun()
	}

	// Wait for the loop to exit or for the context to expire.
	select {
	case <-schedulerInstance.stoppedChannel:
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.SchedulerLog.Info("Scheduler stopped")
	return nil
}

func (schedulerInstance *schedulerImpl) Statuses() []TaskStatus {
	schedulerInstance.mutexForTasks.Lock()
	defer schedulerInstance.mutexForTasks.Unlock()

	statuses := make([]TaskStatus, 0, len(schedulerInstance.tasks))
	for _, entry := range schedulerInstance.tasks {
		statuses = append(statuses, entry.status)
	}
	return statuses
}

// runLoop executes the periodic scheduling logic until stopChannel is closed.
func (schedulerInstance *schedulerImpl) runLoop(runContext context.Context) {
	defer close(schedulerInstance.stoppedChannel)

	ticker := time.NewTicker(schedulerInstance.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-schedulerInstance.stopChannel:
			return
		case <-ticker.C:
			schedulerInstance.processTick(runContext)
		}
	}
}

// processTick runs every task that is due at the current time.
func (schedulerInstance *schedulerImpl) processTick(runContext context.Context) {
	for _, entry := range schedulerInstance.tasks {
		if runContext.Err() != nil {
			return
		}

		now := schedulerInstance.now()
		schedulerInstance.mutexForTasks.Lock()
		due := schedulerInstance.isTaskDue(entry, now)
		schedulerInstance.mutexForTasks.Unlock()
		if !due {
			continue
		}

		runError := schedulerInstance.runTask(runContext, entry.task)

		schedulerInstance.mutexForTasks.Lock()
		entry.status.LastRunAt = now
		entry.status.Runs++
		entry.status.LastError = ""
		if runError != nil {
			entry.status.LastError = runError.Error()
		}
		schedulerInstance.mutexForTasks.Unlock()

		if runError != nil {
			logger.SchedulerLog.Warnf("task %s failed: %v", entry.task.Name, runError)
			continue
		}
		logger.SchedulerLog.Debugf("task %s done in %s", entry.task.Name, schedulerInstance.now().Sub(now))
	}
}

// runTask calls the task and turns a panic into an error so one broken task
// cannot end the loop.
func (schedulerInstance *schedulerImpl) runTask(runContext context.Context, task Task) (runError error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runError = errors.Errorf("task panicked: %v", recovered)
		}
	}()
	return task.Run(runContext)
}

// isTaskDue decides whether a task is due at the given reference time.
// Callers hold mutexForTasks.
func (schedulerInstance *schedulerImpl) isTaskDue(entry *taskEntry, now time.Time) bool {
	if entry.status.LastRunAt.IsZero() {
		return true
	}

	elapsed := now.Sub(entry.status.LastRunAt)
	threshold := entry.task.Every
	if schedulerInstance.delayTolerance > 0 && schedulerInstance.delayTolerance < threshold {
		threshold -= schedulerInstance.delayTolerance
	}

	return elapsed >= threshold
}
