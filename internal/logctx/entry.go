// Leveled event logging carried through context
package logctx

import (
	"context"
	"cromp/internal/global"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Creates a logger that keeps events at or below level.
//
// level
//
//	0 - None: errors only
//	1 - Standard: connections, logins and failures
//	2 - Progress: tentacle and worker lifecycle
//	3 - Data: per message summaries
//	4 - FullData: message contents
//	5 - Debug: raw frames
func NewLogger(id string, level int, done <-chan struct{}) (logger *Logger) {
	logger = &Logger{ID: id, Done: done}
	logger.level.Store(int32(level))
	logger.arrived = sync.NewCond(&logger.mutex)
	return
}

func WithLogger(ctx context.Context, logger *Logger) (ctxLogger context.Context) {
	ctxLogger = context.WithValue(ctx, global.LoggerKey, logger)
	return
}

// Changes the level of the logger in ctx, if any
func SetLogLevel(ctx context.Context, level int) {
	if logger := GetLogger(ctx); logger != nil {
		logger.level.Store(int32(level))
	}
}

// Nil when ctx carries no logger
func GetLogger(ctx context.Context) (logger *Logger) {
	logger, _ = ctx.Value(global.LoggerKey).(*Logger)
	return
}

// Queues message under the tags of ctx. Errors are kept at any level.
// Message is only run through Sprintf when vars are given.
func LogEvent(ctx context.Context, level int, severity string, message string, vars ...any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}
	if level > int(logger.level.Load()) && severity != global.ErrorLog {
		return
	}

	if len(vars) > 0 && strings.Contains(message, "%") {
		message = fmt.Sprintf(message, vars...)
	}
	logger.enqueue(Event{
		Timestamp: time.Now(),
		Severity:  severity,
		Tags:      GetTagList(ctx),
		Message:   message,
	})
}

func (logger *Logger) enqueue(event Event) {
	logger.mutex.Lock()
	logger.pending = append(logger.pending, event)
	logger.arrived.Signal()
	logger.mutex.Unlock()
}
