package logging

import (
	"bytes"
	"log"
	"sync"
)

var redirectOnce sync.Once

// RedirectStdLog routes the standard library log package through a logger
// named "stdlog" at INFO. Only the first call has an effect.
func RedirectStdLog() {
	redirectOnce.Do(func() {
		log.SetFlags(0)
		log.SetPrefix("")
		log.SetOutput(&stdLogWriter{logger: GetLogger("stdlog")})
	})
}

type stdLogWriter struct {
	logger *Logger
}

func (w *stdLogWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\r\n"))
	w.logger.Info("%s", msg)
	return len(p), nil
}
