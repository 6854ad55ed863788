// Copyright 2025 Google LLC
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

package logger

import (
	"fmt"
	"io"
	"os"
)

// AsyncLogger decouples a slow sink (a rotating file on disk) from the
// kernel threads that log to it: Write copies its argument and hands it
// to a single background goroutine, so a logging call from inside a
// cancellable sleep checkpoint never blocks on disk I/O.
type AsyncLogger struct {
	dest    io.Writer
	entries chan []byte
	closed  chan error
}

// NewAsyncLogger starts the background writer goroutine. bufferSize
// entries may queue before Write starts dropping messages rather than
// blocking the caller.
func NewAsyncLogger(dest io.Writer, bufferSize int) *AsyncLogger {
	l := &AsyncLogger{
		dest:    dest,
		entries: make(chan []byte, bufferSize),
		closed:  make(chan error, 1),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	var firstErr error
	for b := range l.entries {
		if _, err := l.dest.Write(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closed <- firstErr
}

// Write queues p for asynchronous delivery to the underlying writer. It
// copies p, since the caller may reuse its buffer immediately after Write
// returns (io.Writer's contract). If the queue is full, the message is
// dropped and a warning is printed to stderr rather than blocking the
// caller, the same trade-off gcsfuse's own async logger makes.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)

	select {
	case l.entries <- b:
		return len(p), nil
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
		return len(p), nil
	}
}

// Close drains any queued entries and stops the background goroutine,
// returning the first write error encountered, if any.
func (l *AsyncLogger) Close() error {
	close(l.entries)
	return <-l.closed
}
