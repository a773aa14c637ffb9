package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	taskTimeout    = 5 * time.Minute
	failureBackoff = time.Minute
	stopTimeout    = 30 * time.Second
)

type taskState struct {
	mu           sync.Mutex
	backoffUntil time.Time
	lastAttempt  time.Time
	lastSuccess  time.Time
}

// TaskStatus is a read-only snapshot of one task's run history.
type TaskStatus struct {
	LastAttempt time.Time
	LastSuccess time.Time
}

// Scheduler runs each task on its own timer. A failing task backs off
// for a minute instead of retrying on the next tick; explicit triggers
// bypass the backoff and coalesce while a run is in flight.
type Scheduler struct {
	tasks    []Task
	states   map[string]*taskState
	triggers map[string]chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(tasks ...Task) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		tasks:    tasks,
		states:   make(map[string]*taskState, len(tasks)),
		triggers: make(map[string]chan struct{}, len(tasks)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, task := range tasks {
		s.states[task.Name] = &taskState{}
		s.triggers[task.Name] = make(chan struct{}, 1)
	}
	return s
}

func (s *Scheduler) Start() {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runLoop(task)
	}
}

// Stop denies further runs and waits for in-flight work to finish,
// bounded so shutdown never hangs on a stuck task.
func (s *Scheduler) Stop() {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("Scheduler stop timed out, abandoning running tasks")
	}
}

// Trigger requests an immediate run of the named tasks. Requests made
// while a run is in flight coalesce into a single follow-up run;
// unknown names are ignored.
func (s *Scheduler) Trigger(names ...string) {
	for _, name := range names {
		trigger, ok := s.triggers[name]
		if !ok {
			slog.Warn("Trigger for unknown task ignored", "task", name)
			continue
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
}

// Status reports the run history of every task.
func (s *Scheduler) Status() map[string]TaskStatus {
	statuses := make(map[string]TaskStatus, len(s.tasks))
	for name, state := range s.states {
		state.mu.Lock()
		statuses[name] = TaskStatus{
			LastAttempt: state.lastAttempt,
			LastSuccess: state.lastSuccess,
		}
		state.mu.Unlock()
	}
	return statuses
}

func (s *Scheduler) runLoop(task Task) {
	defer s.wg.Done()

	state := s.states[task.Name]
	trigger := s.triggers[task.Name]

	var tick <-chan time.Time
	if task.Interval > 0 {
		ticker := time.NewTicker(task.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if task.RunAtStart {
		s.execute(task, state)
		drainTick(tick)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-tick:
			if s.inBackoff(state) {
				slog.Debug("Task tick skipped during backoff", "task", task.Name)
				continue
			}
			s.execute(task, state)
			drainTick(tick)
		case <-trigger:
			s.execute(task, state)
			drainTick(tick)
		}
	}
}

// drainTick drops a tick that accumulated while a run was in flight, so
// a long run is not immediately followed by a stacked one.
func drainTick(tick <-chan time.Time) {
	select {
	case <-tick:
	default:
	}
}

func (s *Scheduler) inBackoff(state *taskState) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	return time.Now().Before(state.backoffUntil)
}

func (s *Scheduler) execute(task Task, state *taskState) {
	state.mu.Lock()
	state.lastAttempt = time.Now()
	state.mu.Unlock()

	// The run context is independent of the scheduler's: Stop denies
	// new runs and waits, it does not abort work already in flight.
	taskCtx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)

	state.mu.Lock()
	defer state.mu.Unlock()

	if err != nil {
		state.backoffUntil = time.Now().Add(failureBackoff)
		slog.Error("Task execution failed", "task", task.Name, "elapsed", time.Since(start).String(), "error", err)
		return
	}

	state.lastSuccess = time.Now()
	state.backoffUntil = time.Time{}
	slog.Debug("Task executed", "task", task.Name, "elapsed", time.Since(start).String())
}
