// Package logger provides the structured logging engine for Enclave.
// Uses log/slog writing to stderr and optionally a log file, plus a simple
// append-only audit writer — no external dependencies required.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Logger wraps slog.Logger with Enclave-specific utilities.
type Logger struct {
	*slog.Logger
	auditW io.Writer // append-only audit log writer (nil = disabled)
}

// Init initialises the global logger. Safe to call multiple times.
func Init(level, format, logFile, enclaveHome string, debug bool) (*Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}

	// Build multi-writer: always write to stderr, optionally to file
	writers := []io.Writer{os.Stderr}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0750); err == nil {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
			if err == nil {
				writers = append(writers, f)
			}
		}
	}

	out := io.MultiWriter(writers...)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl, AddSource: debug}
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	base := slog.New(handler)
	slog.SetDefault(base)

	// Audit log
	var auditW io.Writer
	if enclaveHome != "" {
		auditPath := filepath.Join(enclaveHome, "audit.log")
		if af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640); err == nil {
			auditW = af
		}
	}

	return &Logger{
		Logger: base,
		auditW: auditW,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit logging
// ─────────────────────────────────────────────────────────────────────────────

// AuditEntry represents a single audit log event.
type AuditEntry struct {
	Timestamp   time.Time `json:"ts"`
	Op          string    `json:"op"` // create | deploy | promote | delete | cleanup
	Environment string    `json:"environment,omitempty"`
	Result      string    `json:"result"` // success | failure
	Detail      string    `json:"detail,omitempty"`
}

// Audit writes an append-only audit log entry.
func (l *Logger) Audit(entry AuditEntry) {
	l.Info("audit",
		"op", entry.Op,
		"environment", entry.Environment,
		"result", entry.Result,
	)
	if l.auditW == nil {
		return
	}
	line := fmt.Sprintf(`{"ts":%q,"op":%q,"environment":%q,"result":%q,"detail":%q}`+"\n",
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.Op, entry.Environment, entry.Result, entry.Detail,
	)
	_, _ = l.auditW.Write([]byte(line))
}
