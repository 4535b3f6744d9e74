package cmd

import (
	"fmt"
	"io"
	"strings"

	"log/slog"

	"github.com/ethereum/go-ethereum/log"
	"github.com/xyproto/env/v2"
)

func Logger(w io.Writer, lvl slog.Level) log.Logger {
	return log.NewLogger(log.LogfmtHandlerWithLevel(w, lvl))
}

// LogLevel reads the level from RVEMU_LOG_LEVEL, falling back to info.
// Debug is forced when tracing, since instruction traces are logged at debug level.
func LogLevel(trace bool) slog.Level {
	if trace {
		return log.LevelDebug
	}
	switch strings.ToLower(env.Str(envPrefix+"LOG_LEVEL", "info")) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// HexU64 to lazy-format addresses for logging
type HexU64 uint64

func (v HexU64) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

func (v HexU64) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// HexU32 to lazy-format instruction words for logging
type HexU32 uint32

func (v HexU32) String() string {
	return fmt.Sprintf("%08x", uint32(v))
}

func (v HexU32) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
