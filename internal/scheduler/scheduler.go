// Package scheduler is the bounded-concurrency dispatcher that turns
// pending Tasks into running Pipelines, persists every status
// transition, and exposes pause/cancel/retry/delete control. Tasks are
// independent, so the pool needs no cross-worker ordering: a FIFO
// queue feeds worker goroutines gated by a resizable slot count.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/kaelin-dev/subtrans/internal/apperr"
	"github.com/kaelin-dev/subtrans/internal/llm"
	"github.com/kaelin-dev/subtrans/internal/pipeline"
	"github.com/kaelin-dev/subtrans/internal/progress"
	"github.com/kaelin-dev/subtrans/internal/store"
)

// ProviderFactory builds the LLM Provider named by a task's llm_provider
// field from current Settings; kept as an injected func so Scheduler
// doesn't need to know about Settings' API-key field layout.
type ProviderFactory func(providerName string) (llm.Provider, error)

type control struct {
	cancel context.CancelFunc
	paused atomic.Bool
}

type Scheduler struct {
	store       *store.Store
	bus         *progress.Bus
	providers   ProviderFactory
	scratchRoot string
	log         zerolog.Logger

	// slotMu/slotCond guard the worker-slot count so the limit can be
	// raised or lowered at runtime: a decrease never preempts a running
	// task, it only withholds newly released slots until the count
	// satisfies the new limit.
	slotMu   sync.Mutex
	slotCond *sync.Cond
	limit    int
	active   int

	mu      sync.Mutex
	running map[int64]*control
	queue   chan int64

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

func New(st *store.Store, bus *progress.Bus, providers ProviderFactory, scratchRoot string, maxConcurrent int, log zerolog.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	s := &Scheduler{
		store:       st,
		bus:         bus,
		providers:   providers,
		scratchRoot: scratchRoot,
		log:         log,
		limit:       maxConcurrent,
		running:     make(map[int64]*control),
		queue:       make(chan int64, 256),
	}
	s.slotCond = sync.NewCond(&s.slotMu)
	return s
}

// SetMaxConcurrent reconfigures the worker bound at runtime (1..10).
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	s.slotMu.Lock()
	s.limit = n
	s.slotMu.Unlock()
	s.slotCond.Broadcast()
}

func (s *Scheduler) acquireSlot(ctx context.Context) bool {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	for s.active >= s.limit {
		if ctx.Err() != nil {
			return false
		}
		s.slotCond.Wait()
	}
	s.active++
	return true
}

func (s *Scheduler) releaseSlot() {
	s.slotMu.Lock()
	s.active--
	s.slotMu.Unlock()
	s.slotCond.Broadcast()
}

// Start recovers tasks interrupted by a prior crash (processing back to
// pending) and begins the dispatch loop.
func (s *Scheduler) Start(ctx context.Context) error {
	ids, err := s.store.RecoverProcessingTasks()
	if err != nil {
		return fmt.Errorf("scheduler: recover processing tasks: %w", err)
	}
	for _, id := range ids {
		s.log.Warn().Int64("task_id", id).Msg("recovered interrupted task to pending")
	}

	pending, _, err := s.store.ListTasks(string(store.StatusPending), 1000, 0)
	if err != nil {
		return fmt.Errorf("scheduler: list pending tasks: %w", err)
	}

	go s.dispatchLoop(ctx)
	go func() {
		<-ctx.Done()
		s.slotCond.Broadcast()
	}()
	for _, t := range pending {
		s.enqueue(t.ID)
	}
	return nil
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			if s.shuttingDown.Load() {
				continue
			}
			if !s.acquireSlot(ctx) {
				return
			}
			s.wg.Add(1)
			go s.runTask(ctx, id)
		}
	}
}

func (s *Scheduler) enqueue(id int64) {
	select {
	case s.queue <- id:
	default:
		s.log.Error().Int64("task_id", id).Msg("dispatch queue full, dropping enqueue")
	}
}

// Submit creates a new Task row and schedules it.
func (s *Scheduler) Submit(t *store.Task) error {
	if s.shuttingDown.Load() {
		return &apperr.UserError{Message: "scheduler: not accepting new tasks during shutdown"}
	}
	t.Status = store.StatusPending
	if err := s.store.CreateTask(t); err != nil {
		return fmt.Errorf("scheduler: create task: %w", err)
	}
	s.bus.PublishNewTask(t.ID)
	s.enqueue(t.ID)
	return nil
}

func (s *Scheduler) runTask(ctx context.Context, id int64) {
	defer s.wg.Done()
	defer s.releaseSlot()

	task, err := s.store.GetTask(id)
	if err != nil {
		s.log.Error().Err(err).Int64("task_id", id).Msg("load task for dispatch")
		return
	}
	if task.Status != store.StatusPending {
		return // paused or already resolved before its turn came up
	}

	if info, statErr := os.Stat(task.FilePath); statErr == nil {
		s.log.Info().Int64("task_id", id).Str("file", task.FileName).
			Str("size", humanize.Bytes(uint64(info.Size()))).Msg("dispatching task")
	}

	provider, err := s.providers(task.LLMProvider)
	if err != nil {
		s.persistFailure(task, err)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	ctrl := &control{cancel: cancel}
	s.mu.Lock()
	s.running[id] = ctrl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	settings, err := s.store.GetSettings()
	if err != nil {
		s.persistFailure(task, err)
		return
	}

	p := pipeline.New(provider, pipeline.Config{
		ScratchRoot:          s.scratchRoot,
		BilingualOutput:      settings.BilingualOutput,
		SubtitleOutputFormat: settings.SubtitleOutputFormat,
		OverwriteMKV:         settings.OverwriteMKV,
	}, pipeline.Hooks{
		OnProgress:  func(pct int) { s.persistProgress(task, pct) },
		OnStatus:    func(status, errMsg string) { s.persistStatus(task, status, errMsg) },
		OnHistory:   func(path, langCode string) error { return s.store.InsertHistory(&store.HistoryRecord{CanonicalFilePath: path, TargetLanguage: langCode}) },
		ShouldPause: func() bool { return ctrl.paused.Load() },
	})

	err = p.Run(runCtx, pipeline.Task{
		ID:             task.ID,
		FilePath:       task.FilePath,
		SourceLanguage: task.SourceLanguage,
		TargetLanguage: task.TargetLanguage,
		SubtitleTrack:  task.SubtitleTrack,
		ForceOverride:  task.ForceOverride,
	})

	switch {
	case err == pipeline.ErrPaused:
		// status already persisted by the OnStatus hook
	case err != nil && runCtx.Err() == context.Canceled:
		// status already persisted by the OnStatus hook (cancelled)
	case err != nil:
		s.log.Error().Err(err).Int64("task_id", id).Msg("task failed")
	default:
		s.log.Info().Int64("task_id", id).Str("submitted", humanize.Time(task.CreatedAt)).Msg("task completed")
	}
}

func (s *Scheduler) persistProgress(t *store.Task, pct int) {
	t.Progress = pct
	if err := s.store.UpdateTask(t); err != nil {
		s.log.Error().Err(err).Int64("task_id", t.ID).Msg("persist progress")
	}
	s.bus.PublishProgress(t.ID, pct)
}

func (s *Scheduler) persistStatus(t *store.Task, status, errMsg string) {
	t.Status = store.TaskStatus(status)
	t.ErrorMessage = errMsg
	if t.Status == store.StatusCompleted {
		now := time.Now()
		t.CompletedAt = &now
		t.Progress = 100
	} else {
		t.CompletedAt = nil
	}
	if err := s.store.UpdateTask(t); err != nil {
		s.log.Error().Err(err).Int64("task_id", t.ID).Msg("persist status")
	}
	s.bus.PublishStatus(t.ID, status)
}

func (s *Scheduler) persistFailure(t *store.Task, err error) {
	s.persistStatus(t, string(store.StatusFailed), err.Error())
}

// Pause requests a running task to stop at its next suspension point;
// a still-pending task is marked paused directly so it won't dispatch.
func (s *Scheduler) Pause(id int64) error {
	s.mu.Lock()
	ctrl, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		ctrl.paused.Store(true)
		return nil
	}

	t, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	if t.Status != store.StatusPending {
		return fmt.Errorf("scheduler: task %d is neither running nor pending", id)
	}
	s.persistStatus(t, string(store.StatusPaused), "")
	return nil
}

// pauseRunning signals every in-flight worker to pause at its next
// suspension point.
func (s *Scheduler) pauseRunning() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ctrl := range s.running {
		ctrl.paused.Store(true)
		n++
	}
	return n
}

// PauseAll pauses every currently-running task plus every pending one.
func (s *Scheduler) PauseAll() int {
	n := s.pauseRunning()

	pending, _, err := s.store.ListTasks(string(store.StatusPending), 10000, 0)
	if err != nil {
		s.log.Error().Err(err).Msg("pause-all: list pending tasks")
		return n
	}
	for _, t := range pending {
		s.persistStatus(t, string(store.StatusPaused), "")
		n++
	}
	return n
}

// Cancel aborts a running task immediately, or marks a pending one
// cancelled directly.
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	ctrl, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		ctrl.cancel()
		return nil
	}

	t, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	s.persistStatus(t, string(store.StatusCancelled), "")
	return nil
}

// Retry re-enqueues a failed/cancelled/paused task. A paused task with
// a checkpoint keeps its progress and resumes mid-translation; anything
// else starts over from 0.
func (s *Scheduler) Retry(id int64) error {
	t, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	if t.Status == store.StatusPending || t.Status == store.StatusProcessing {
		return &apperr.UserError{Message: "scheduler: task is already active"}
	}
	if t.Status != store.StatusPaused {
		t.Progress = 0
	}
	t.Status = store.StatusPending
	t.ErrorMessage = ""
	t.CompletedAt = nil
	if err := s.store.UpdateTask(t); err != nil {
		return err
	}
	s.bus.PublishStatus(t.ID, string(store.StatusPending))
	s.enqueue(id)
	return nil
}

// Delete cancels a running task (if any) and removes its row; the bool
// reports whether an in-flight worker had to be cancelled first.
func (s *Scheduler) Delete(id int64) (bool, error) {
	s.mu.Lock()
	ctrl, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		ctrl.cancel()
	}
	return ok, s.store.DeleteTask(id)
}

// Shutdown refuses new submissions, signals every running task to
// pause (so its checkpoint is persisted), and waits for workers to
// drain before returning.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.pauseRunning()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
