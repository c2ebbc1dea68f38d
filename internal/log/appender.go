package log

import (
	"errors"
	"io"
	"sync"
)

// MultiWriter is the output behind a logger: stdout plus any appenders.
// Writes are serialized so a rotating file sees whole lines. Every writer is
// tried; the failures are joined.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
	closers []io.Closer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

// Add appends a writer the MultiWriter does not own, such as stdout.
func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, w)
	m.mu.Unlock()
	return m
}

// addOwned appends an appender that is closed with the MultiWriter.
func (m *MultiWriter) addOwned(w io.WriteCloser) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, w)
	m.closers = append(m.closers, w)
	m.mu.Unlock()
	return m
}

// Close closes the owned appenders. Writers added with Add are left open.
func (m *MultiWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}
