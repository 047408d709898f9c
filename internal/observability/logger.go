package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging across the engine, the
// rendezvous server, and the daemon's control plane.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger, tagging every line with
// service/version/host so logs from the sender, receiver, and rendezvous
// processes can be told apart once aggregated.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithSession returns a Logger that tags every subsequent line with this
// session's id, for following one transfer's lifecycle across connection
// establishment and the send/receive pipeline.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{logger: l.logger.With().Str("session_id", sessionID).Logger()}
}

// WithPeer returns a Logger tagged with the peer's address, once known.
func (l *Logger) WithPeer(peerAddr string) *Logger {
	return &Logger{logger: l.logger.With().Str("peer_addr", peerAddr).Logger()}
}

// WithFile returns a Logger tagged with the file currently being sent or
// received, for per-file chunk-level Debug logging.
func (l *Logger) WithFile(name string, size int64) *Logger {
	return &Logger{logger: l.logger.With().Str("file", name).Int64("size", size).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits the process.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
