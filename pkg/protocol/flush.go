package protocol

import (
	"bufio"
	"io"
	"sync"
)

// FlushWriter pushes every completed write straight through to the
// underlying writer so a peer reading line by line never waits on a buffer.
type FlushWriter struct {
	mu  sync.Mutex
	buf *bufio.Writer
}

func NewFlushWriter(w io.Writer) *FlushWriter {
	return &FlushWriter{buf: bufio.NewWriter(w)}
}

func (w *FlushWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.buf.Flush()
}

func (w *FlushWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
