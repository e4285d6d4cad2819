// Copyright 2025 FDStore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store implements a bounded-FD random-access file store: many
// logical files addressable by short path, arbitrary positional reads and
// writes against each, and a process-wide guarantee that at most
// MaxOpenFiles backing files are open at once.
//
// A scheduler goroutine owns all mutable state. Per-path workers cycle
// between closed and open, queueing ops that arrive while their file is not
// open; the scheduler admits workers into the FD budget and evicts idle ones
// (oldest first) to make room. OS I/O runs on short-lived goroutines whose
// completions feed back into the scheduler, so a worker's state machine is
// never advanced concurrently.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fdstore/internal/common"
)

// LockFileName is the guard lock taken in DirPath. It keeps a second store
// (in this or another process) off the same directory; it is held for the
// store's lifetime and is the one descriptor not covered by the FD budget.
const LockFileName = ".fdstore.lock"

// Store is the directory-scoped scheduler. It registers one worker and one
// Handle per short path, owns the FD budget, and drives every worker's state
// machine from a single goroutine.
type Store struct {
	cfg     Config
	fs      billy.Filesystem
	id      uuid.UUID
	log     *logrus.Entry
	dirLock *flock.Flock

	tasks    *taskQueue
	loopDone chan struct{}

	mu      sync.Mutex // guards handles, workers, closing
	handles map[string]*Handle
	workers map[string]*pathWorker
	closing bool

	// Scheduler state below is touched only on the scheduler goroutine.
	numActive    int           // workers counted against the budget
	stoppable    []*pathWorker // idle open workers, LRU-eviction order
	schedule     []*pathWorker // workers with pending ops awaiting an FD
	closed       bool
	shutdownDone chan struct{}
}

// New creates a store over cfg.DirPath (created if missing) and takes the
// directory guard lock. The returned store must be released with Close.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Store{
		cfg:      cfg,
		id:       uuid.New(),
		tasks:    newTaskQueue(),
		loopDone: make(chan struct{}),
		handles:  make(map[string]*Handle),
		workers:  make(map[string]*pathWorker),
	}
	s.log = logger.WithField("store", s.id.String()[:8])

	s.fs = cfg.Filesystem
	if s.fs == nil {
		if err := os.MkdirAll(cfg.DirPath, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		lock := flock.New(filepath.Join(cfg.DirPath, LockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock store directory: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("store directory %s already in use", cfg.DirPath)
		}
		s.dirLock = lock
		s.fs = osfs.New(cfg.DirPath)
	}

	s.log.WithFields(logrus.Fields{
		"dir":            cfg.DirPath,
		"max_open_files": cfg.MaxOpenFiles,
	}).Debug("store created")

	go s.loop()
	return s, nil
}

func (s *Store) loop() {
	defer close(s.loopDone)
	for {
		fn, ok := s.tasks.pop()
		if !ok {
			return
		}
		fn()
	}
}

// StorageFor returns the Handle for shortPath, creating handle and worker on
// first request. Idempotent and safe for concurrent use; the handle stays
// valid for the lifetime of the store.
func (s *Store) StorageFor(shortPath string) (*Handle, error) {
	p := common.NormalizePath(shortPath)
	if !common.IsLocal(p) {
		return nil, fmt.Errorf("short path %q: %w", shortPath, common.ErrInvalidPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, common.ErrStoreClosed
	}
	if h, ok := s.handles[p]; ok {
		return h, nil
	}

	w := newPathWorker(s, p, p)
	h := &Handle{store: s, worker: w, shortPath: p}
	s.handles[p] = h
	s.workers[p] = w
	return h, nil
}

// submit enqueues an op on its worker and schedules the worker.
func (s *Store) submit(w *pathWorker, o *op) {
	ok := s.tasks.push(func() {
		if s.closed {
			o.fail(fmt.Errorf("%q: %w", w.shortPath, common.ErrStoreClosed))
			return
		}
		w.add(o)
		s.schedule = append(s.schedule, w)
		s.pull()
	})
	if !ok {
		o.fail(fmt.Errorf("%q: %w", w.shortPath, common.ErrStoreClosed))
	}
}

// pull is the scheduling core. It runs until the schedule queue is empty or
// no progress can be made this turn; every start/stop completion re-enters
// it, so stalled work resumes as soon as a slot frees up.
func (s *Store) pull() {
	for len(s.schedule) > 0 {
		headroom := s.numActive < s.cfg.MaxOpenFiles
		if !headroom && len(s.stoppable) == 0 {
			// No slot and nothing evictable; an in-flight stop will call
			// back in and resume.
			return
		}

		w := s.schedule[0]
		s.schedule[0] = nil
		s.schedule = s.schedule[1:]

		if w.poisonErr != nil {
			continue
		}
		if w.control == controlStart {
			// Already heading toward (or at) Opened; its own tick picks up
			// the queued ops.
			continue
		}

		if w.state != stateClosed {
			// Mid-stop with new ops queued: flip the wish back to Start so
			// the worker drains them once it is Opened again.
			s.log.WithField("path", w.shortPath).Debug("rescue")
			w.start(nil)
			continue
		}

		if headroom {
			s.numActive++
			w.active = true
			s.log.WithFields(logrus.Fields{
				"path":   w.shortPath,
				"active": s.numActive,
			}).Debug("admit")
			w.start(func() {
				s.markStoppable(w)
				s.pull()
			})
			continue
		}

		// No headroom: evict the least-recently-idle worker, put this one
		// back at the head, and wait for the stop completion to re-enter.
		// One eviction buys exactly one slot; evicting more of the queue
		// here would churn workers that nothing is waiting for.
		v := s.stoppable[0]
		s.log.WithFields(logrus.Fields{
			"evict": v.shortPath,
			"for":   w.shortPath,
		}).Debug("evict")
		s.stopWorker(v)
		s.schedule = append([]*pathWorker{w}, s.schedule...)
		return
	}
}

// markStoppable admits w as an eviction candidate if it is idle, open and
// wished-Start. Safe to call redundantly; also the shutdown hook that stops
// workers as they go idle.
func (s *Store) markStoppable(w *pathWorker) {
	if w.stoppable || w.poisonErr != nil {
		return
	}
	if w.state != stateOpened || w.control != controlStart || len(w.ops) > 0 {
		return
	}
	if s.closed {
		s.stopWorker(w)
		return
	}
	w.stoppable = true
	s.stoppable = append(s.stoppable, w)
	s.pull()
}

func (s *Store) removeStoppable(w *pathWorker) {
	if !w.stoppable {
		return
	}
	w.stoppable = false
	for i, v := range s.stoppable {
		if v == w {
			s.stoppable = append(s.stoppable[:i], s.stoppable[i+1:]...)
			return
		}
	}
}

// stopWorker stops w and releases its budget slot when the stop completes.
func (s *Store) stopWorker(w *pathWorker) {
	s.removeStoppable(w)
	if w.stopCb != nil {
		// Already mid-stop; the pending completion carries the accounting.
		return
	}
	w.stop(func() {
		if w.active {
			w.active = false
			s.numActive--
		}
		s.pull()
	})
}

// poisonWorker marks w permanently failed. Queued and future ops on its
// short path fail with ErrWorkerPoisoned wrapping the cause; the budget slot
// is released and the scheduler stays functional for other paths.
func (s *Store) poisonWorker(w *pathWorker, cause error) {
	w.poisonErr = fmt.Errorf("%w: %v", common.ErrWorkerPoisoned, cause)
	w.log.WithError(cause).Warn("worker poisoned")

	w.failQueued(w.poisonErr)
	w.startCb = nil
	w.stopCb = nil
	s.removeStoppable(w)
	if w.active {
		w.active = false
		s.numActive--
	}
	if w.file != nil {
		f := w.file
		w.file = nil
		w.writeAt = nil
		go f.Close()
	}
	w.state = stateClosed
	w.control = controlStop

	s.pull()
	s.maybeFinishShutdown()
}

// Close stops accepting work, drains every worker and shuts the scheduler
// down. Ops submitted before Close complete; later ones fail with
// ErrStoreClosed. The context bounds the wait.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return common.ErrStoreClosed
	}
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	if !s.tasks.push(func() { s.beginShutdown(done) }) {
		return common.ErrStoreClosed
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.tasks.close()
	<-s.loopDone

	if s.dirLock != nil {
		if err := s.dirLock.Unlock(); err != nil {
			return fmt.Errorf("release store directory lock: %w", err)
		}
	}
	s.log.Debug("store closed")
	return nil
}

func (s *Store) beginShutdown(done chan struct{}) {
	s.closed = true
	s.shutdownDone = done

	s.mu.Lock()
	workers := make([]*pathWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		if w.poisonErr != nil {
			continue
		}
		if w.state == stateClosed {
			// Either fully idle, or holding queued ops that pull will still
			// admit and drain before shutdown completes.
			continue
		}
		s.stopWorker(w)
	}
	s.pull()
	s.maybeFinishShutdown()
}

// maybeFinishShutdown completes Close once every worker is closed and
// drained. Scheduler goroutine only.
func (s *Store) maybeFinishShutdown() {
	if s.shutdownDone == nil {
		return
	}

	s.mu.Lock()
	for _, w := range s.workers {
		if w.poisonErr != nil {
			continue
		}
		if w.state != stateClosed || len(w.ops) > 0 {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	done := s.shutdownDone
	s.shutdownDone = nil
	close(done)
}

// Stats is a point-in-time snapshot of scheduler state, taken on the
// scheduler goroutine at a quiescent instant between tasks.
type Stats struct {
	Workers          int // path workers ever created
	ActiveWorkers    int // counted against the FD budget
	OpenWorkers      int // state in {Opened, Draining, Closing}
	StoppableWorkers int // idle open workers, eviction candidates
	ScheduledWorkers int // schedule queue length (duplicates included)
	QueuedOps        int // ops waiting for their worker to open
	InFlightOps      int // ops issued to the OS, not yet completed
}

// Stats returns a consistent snapshot. Returns the zero value after the
// store has fully shut down.
func (s *Store) Stats() Stats {
	res := make(chan Stats, 1)
	ok := s.tasks.push(func() {
		st := Stats{
			ActiveWorkers:    s.numActive,
			StoppableWorkers: len(s.stoppable),
			ScheduledWorkers: len(s.schedule),
		}
		s.mu.Lock()
		st.Workers = len(s.workers)
		for _, w := range s.workers {
			switch w.state {
			case stateOpened, stateDraining, stateClosing:
				st.OpenWorkers++
			}
			st.QueuedOps += len(w.ops)
			st.InFlightOps += w.inFlightReads + w.inFlightWrites
		}
		s.mu.Unlock()
		res <- st
	})
	if !ok {
		return Stats{}
	}
	return <-res
}
