// Package logx provides the process-wide logger used by every cmd/ binary.
package logx

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger configured for console output.
func NewLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		return fmt.Sprintf("%-28s", fmt.Sprintf("%s:%d", short, line))
	}
	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

// NewSilentLogger discards everything; used by library-style callers and
// tests that don't want console noise.
func NewSilentLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
