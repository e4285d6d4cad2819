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

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"fdstore/internal/common"
	"fdstore/internal/util"
)

// workerControl is the scheduler's current wish for a worker.
type workerControl int

const (
	controlStop workerControl = iota
	controlStart
)

func (c workerControl) String() string {
	if c == controlStart {
		return "start"
	}
	return "stop"
}

// workerState is a worker's observed lifecycle position. The backing file is
// open exactly in Opened, Draining and Closing.
type workerState int

const (
	stateClosed workerState = iota
	stateOpening
	stateOpened
	stateDraining
	stateClosing
)

func (s workerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpening:
		return "opening"
	case stateOpened:
		return "opened"
	case stateDraining:
		return "draining"
	case stateClosing:
		return "closing"
	}
	return "unknown"
}

// pathWorker is the per-file state machine. It owns the open file while open,
// queues ops that arrive while the file is not open, and executes them when
// it is. All fields except the ones handed to I/O goroutines are mutated
// only on the store's scheduler goroutine.
type pathWorker struct {
	store     *Store
	shortPath string
	filePath  string // normalized path within the backing filesystem

	control workerControl
	state   workerState

	file    billy.File
	writeAt io.WriterAt

	ops            []*op
	inFlightReads  int
	inFlightWrites int

	// At-most-one pending notification each. startCb fires when the worker
	// next reaches Opened with its queued ops dispatched; stopCb fires when
	// it next reaches Closed under a Stop wish.
	startCb func()
	stopCb  func()

	dirReady  bool // enclosing directory known to exist
	active    bool // counted against the store's FD budget
	stoppable bool // currently enqueued as an eviction candidate

	poisonErr error

	log *logrus.Entry
}

func newPathWorker(s *Store, shortPath, filePath string) *pathWorker {
	return &pathWorker{
		store:     s,
		shortPath: shortPath,
		filePath:  filePath,
		log:       s.log.WithField("path", shortPath),
	}
}

// add appends an op to the queue. Scheduler goroutine only.
func (w *pathWorker) add(o *op) {
	if w.poisonErr != nil {
		o.fail(w.poisonErr)
		return
	}
	w.ops = append(w.ops, o)
	w.tick()
}

// start flips the worker's wish to Start. cb, if non-nil, fires once when the
// worker next reaches Opened with the then-queued ops dispatched. A pending
// stop notification is discarded: the rescue cancels the eviction it belonged
// to, and the budget slot it would have released stays taken.
func (w *pathWorker) start(cb func()) {
	w.control = controlStart
	if cb != nil {
		if w.startCb != nil {
			panic("pathWorker: start notification already pending")
		}
		w.startCb = cb
	}
	w.stopCb = nil
	w.tick()
}

// stop flips the worker's wish to Stop. cb, if non-nil, fires once when the
// worker next reaches Closed.
func (w *pathWorker) stop(cb func()) {
	w.control = controlStop
	if cb != nil {
		if w.stopCb != nil {
			panic("pathWorker: stop notification already pending")
		}
		w.stopCb = cb
	}
	w.tick()
}

// tick advances the state machine one step. Re-invoked after every async
// completion; never re-entered concurrently (scheduler goroutine only).
func (w *pathWorker) tick() {
	if w.poisonErr != nil {
		return
	}

	switch w.control {
	case controlStart:
		switch w.state {
		case stateClosed:
			w.beginOpen()
		case stateOpening, stateClosing:
			// wait for the in-flight transition to complete
		case stateOpened:
			w.execOps()
			if cb := w.startCb; cb != nil {
				w.startCb = nil
				cb()
			}
			w.store.markStoppable(w)
		case stateDraining:
			// rescue: the scheduler changed its mind before the file closed
			w.log.Debug("rescued from drain")
			w.state = stateOpened
			w.tick()
		}

	case controlStop:
		switch w.state {
		case stateOpened:
			w.execOps()
			w.state = stateDraining
			w.tick()
		case stateDraining:
			if w.inFlightReads+w.inFlightWrites == 0 {
				w.beginClose()
			}
		case stateOpening, stateClosing:
			// wait
		case stateClosed:
			if cb := w.stopCb; cb != nil {
				w.stopCb = nil
				cb()
			}
		}
	}
}

// execOps dispatches every queued op against the open file. Reads and writes
// go to the OS back-to-back without awaiting each other; completions
// decrement the in-flight counters and re-tick.
func (w *pathWorker) execOps() {
	for len(w.ops) > 0 && (w.state == stateOpened || w.state == stateDraining) {
		o := w.ops[0]
		w.ops[0] = nil
		w.ops = w.ops[1:]

		switch o.kind {
		case opRead:
			w.inFlightReads++
			go w.doRead(w.file, o)
		case opWrite:
			w.inFlightWrites++
			go w.doWrite(w.writeAt, o)
		}
	}
}

func (w *pathWorker) beginOpen() {
	w.state = stateOpening
	w.log.Trace("opening")

	needDir := !w.dirReady
	fs := w.store.fs
	filePath := w.filePath

	go func() {
		ctx := context.Background()
		var err error
		if needDir {
			if dir := common.ParentPath(filePath); dir != "" {
				err = util.Retry(ctx, func() error {
					return fs.MkdirAll(dir, 0o755)
				}, util.OpenRetryOptions(ctx)...)
				if err != nil {
					err = fmt.Errorf("mkdir %s: %w", dir, err)
				}
			}
		}

		var f billy.File
		if err == nil {
			f, err = util.RetryWithResult(ctx, func() (billy.File, error) {
				return fs.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o644)
			}, util.OpenRetryOptions(ctx)...)
			if err != nil {
				err = fmt.Errorf("open %s: %w", filePath, err)
			}
		}

		w.store.tasks.push(func() { w.finishOpen(f, err) })
	}()
}

func (w *pathWorker) finishOpen(f billy.File, err error) {
	if err != nil {
		w.state = stateClosed
		w.store.poisonWorker(w, err)
		return
	}
	w.dirReady = true
	w.file = f
	w.writeAt = fileWriterAt(f)
	w.state = stateOpened
	w.log.Trace("opened")
	w.tick()
}

func (w *pathWorker) beginClose() {
	w.state = stateClosing
	w.log.Trace("closing")

	f := w.file
	w.file = nil
	w.writeAt = nil

	go func() {
		err := f.Close()
		w.store.tasks.push(func() { w.finishClose(err) })
	}()
}

func (w *pathWorker) finishClose(err error) {
	if err != nil {
		w.state = stateClosed
		w.store.poisonWorker(w, fmt.Errorf("close %s: %w", w.filePath, err))
		return
	}
	w.state = stateClosed
	w.log.Trace("closed")
	w.tick()
	w.store.maybeFinishShutdown()
}

// failQueued fails every queued op. In-flight I/O is unaffected.
func (w *pathWorker) failQueued(err error) {
	ops := w.ops
	w.ops = nil
	for _, o := range ops {
		o.fail(err)
	}
}

// doRead runs on an I/O goroutine. The file handle is pinned before dispatch
// and stays valid until the in-flight counter drains.
func (w *pathWorker) doRead(f billy.File, o *op) {
	buf := make([]byte, o.size)
	n, err := f.ReadAt(buf, o.offset)

	w.store.tasks.push(func() {
		w.inFlightReads--
		switch {
		case err != nil && !errors.Is(err, io.EOF):
			o.readCb(nil, fmt.Errorf("read %q at %d: %w", w.shortPath, o.offset, err))
		case n < o.size:
			o.readCb(nil, fmt.Errorf("read %q at %d: got %d of %d bytes: %w",
				w.shortPath, o.offset, n, o.size, common.ErrShortRead))
		default:
			o.readCb(buf, nil)
		}
		w.tick()
	})
}

// doWrite runs on an I/O goroutine.
func (w *pathWorker) doWrite(wa io.WriterAt, o *op) {
	n, err := wa.WriteAt(o.data, o.offset)

	w.store.tasks.push(func() {
		w.inFlightWrites--
		switch {
		case err != nil:
			o.writeCb(fmt.Errorf("write %q at %d: %w", w.shortPath, o.offset, err))
		case n < len(o.data):
			o.writeCb(fmt.Errorf("write %q at %d: wrote %d of %d bytes: %w",
				w.shortPath, o.offset, n, len(o.data), common.ErrShortWrite))
		default:
			o.writeCb(nil)
		}
		w.tick()
	})
}
