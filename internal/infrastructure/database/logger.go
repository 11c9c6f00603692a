package database

import (
	"context"
	"errors"
	"time"

	"giftsplit-backend/internal/pkg/logctx"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// queryLogger sends GORM's output to the request logger. Record-not-found is
// a normal lookup miss here and is never logged.
type queryLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newQueryLogger() *queryLogger {
	return &queryLogger{level: gormlogger.Warn, slowThreshold: slowQueryThreshold}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		logctx.From(ctx).Info().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		logctx.From(ctx).Warn().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		logctx.From(ctx).Error().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		ev = logctx.From(ctx).Error().Err(err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		ev = logctx.From(ctx).Warn().Dur("threshold", l.slowThreshold)
	case l.level >= gormlogger.Info:
		ev = logctx.From(ctx).Debug()
	default:
		return
	}
	sql, rows := fc()
	ev.Str("component", "gorm").
		Dur("elapsed", elapsed).
		Int64("rows", rows).
		Str("sql", sql).
		Msg("query")
}
