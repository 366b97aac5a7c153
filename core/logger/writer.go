package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter decouples log emission from sink IO. Handlers enqueue
// encoded lines; a single goroutine drains the queue in batches and
// flushes each sink once per batch, so a burst of update summaries costs
// one flush instead of one per line.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	closing  sync.Once

	mu       sync.Mutex
	sinks    []*bufio.Writer
	writeErr error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	var sinks []*bufio.Writer
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	for {
		select {
		case line, open := <-w.queue:
			var batch [][]byte
			if open {
				batch = append(batch, line)
				batch, open = w.drainPending(batch)
			}
			w.fail(w.writeBatch(batch))
			w.fail(w.flushSinks())
			if !open {
				close(w.done)
				return
			}
		case ack := <-w.flushReq:
			// Drain before flushing so a caller's Write/Flush pair is
			// guaranteed to see its line on the sink.
			batch, open := w.drainPending(nil)
			w.fail(w.writeBatch(batch))
			err := w.flushSinks()
			w.fail(err)
			ack <- err
			if !open {
				close(w.done)
				return
			}
		}
	}
}

// drainPending collects whatever is already queued without blocking. The
// second return is false once the queue has been closed.
func (w *asyncWriter) drainPending(batch [][]byte) ([][]byte, bool) {
	for {
		select {
		case line, open := <-w.queue:
			if !open {
				return batch, false
			}
			batch = append(batch, line)
		default:
			return batch, true
		}
	}
}

// Write enqueues one encoded line. A full queue blocks rather than drop
// the line.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains outstanding lines and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.closing.Do(func() { close(w.queue) })
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeBatch(batch [][]byte) error {
	if len(batch) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		for _, line := range batch {
			if len(line) == 0 {
				continue
			}
			if _, err := sink.Write(line); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
