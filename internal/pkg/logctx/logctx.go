// Package logctx resolves the request-scoped zerolog logger.
package logctx

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// From returns the logger bound to ctx (see middleware.Tracing), falling back
// to the global logger when none is attached.
func From(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &log.Logger
	}
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
