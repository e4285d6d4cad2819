package store

import (
	"io"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// fileWriterAt returns a positional writer for f. Files that implement
// io.WriterAt (the OS filesystem does) are used directly; otherwise a
// lock-guarded seek+write shim serialises writes on that file.
func fileWriterAt(f billy.File) io.WriterAt {
	if wa, ok := f.(io.WriterAt); ok {
		return wa
	}
	return &seekWriter{f: f}
}

type seekWriter struct {
	mu sync.Mutex
	f  billy.File
}

func (s *seekWriter) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.f.Write(p)
}
