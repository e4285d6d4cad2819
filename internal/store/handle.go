package store

import (
	"context"
	"fmt"

	"fdstore/internal/common"
)

// Handle is the per-short-path façade. One Handle exists per short path for
// the lifetime of the store; it holds no state beyond its worker reference
// and forwards every operation to the scheduler.
type Handle struct {
	store     *Store
	worker    *pathWorker
	shortPath string
}

// ShortPath returns the normalized short path this handle addresses.
func (h *Handle) ShortPath() string {
	return h.shortPath
}

// ReadAsync reads size bytes at offset. cb receives either an error or a
// fresh buffer of exactly size bytes. A read at or past end of file fails
// with ErrShortRead.
func (h *Handle) ReadAsync(offset int64, size int, cb ReadCallback) {
	if cb == nil {
		cb = func([]byte, error) {}
	}
	if size <= 0 {
		cb(nil, fmt.Errorf("read %q: size %d: %w", h.shortPath, size, common.ErrInvalidSize))
		return
	}
	if offset < 0 {
		cb(nil, fmt.Errorf("read %q: offset %d: %w", h.shortPath, offset, common.ErrInvalidOffset))
		return
	}
	h.store.submit(h.worker, &op{kind: opRead, offset: offset, size: size, readCb: cb})
}

// WriteAsync writes data at offset. The caller's buffer is used as-is and
// must not be mutated until cb fires. Empty writes complete immediately.
func (h *Handle) WriteAsync(offset int64, data []byte, cb WriteCallback) {
	if cb == nil {
		cb = func(error) {}
	}
	if offset < 0 {
		cb(fmt.Errorf("write %q: offset %d: %w", h.shortPath, offset, common.ErrInvalidOffset))
		return
	}
	if len(data) == 0 {
		cb(nil)
		return
	}
	h.store.submit(h.worker, &op{kind: opWrite, offset: offset, data: data, writeCb: cb})
}

// Read is the blocking form of ReadAsync. The context bounds only the wait:
// a submitted op cannot be withdrawn and still runs to completion after an
// early return.
func (h *Handle) Read(ctx context.Context, offset int64, size int) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	h.ReadAsync(offset, size, func(data []byte, err error) {
		ch <- result{data, err}
	})
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write is the blocking form of WriteAsync. The context bounds only the wait.
func (h *Handle) Write(ctx context.Context, offset int64, data []byte) error {
	ch := make(chan error, 1)
	h.WriteAsync(offset, data, func(err error) {
		ch <- err
	})
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
