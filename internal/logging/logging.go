// Package logging builds the zerolog logger used across the program.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailforward/internal/model"
)

// New returns a logger writing to w at the configured level. Format
// "json" writes one JSON object per line; anything else writes
// human-readable console lines.
func New(cfg model.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
