package snsctx

import (
	"context"
	"encoding/hex"
	"log/slog"
)

type ctxIndex int

const ctxIndexVerbose ctxIndex = iota

// IsVerbose reports whether raw bus frames should be logged.
func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// LogFrame logs a bus frame at debug level when the context is verbose.
func LogFrame(ctx context.Context, direction string, address byte, frame []byte) {
	if !IsVerbose(ctx) {
		return
	}
	slog.DebugContext(ctx, "bus frame", "dir", direction, "addr", slog.IntValue(int(address)), "data", hex.EncodeToString(frame))
}
