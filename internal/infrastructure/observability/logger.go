package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the root zerolog logger. Unknown level strings fall
// back to info rather than erroring, so a config typo never silences logs.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Caller().
		Logger()
}

// WithTransaction returns a logger bound to transaction identifiers, so every
// line emitted while advancing a transaction carries its id and reference.
func WithTransaction(logger zerolog.Logger, id, reference string) zerolog.Logger {
	return logger.With().
		Str("transaction_id", id).
		Str("reference", reference).
		Logger()
}
