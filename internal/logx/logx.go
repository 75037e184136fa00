package logx

import (
	"context"

	"pkt.systems/nexus/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	requestKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the context logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionRequest annotates the context logger with session and request ids.
func WithSessionRequest(ctx context.Context, sessionID schema.SessionID, requestID schema.RequestID) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if requestID != "" {
		if current, ok := ctx.Value(requestKey).(schema.RequestID); ok && current == requestID {
			return log
		}
		log = log.With("request", requestID)
	}
	return log
}

// WithModel annotates the logger with mode and model when available.
func WithModel(log pslog.Logger, mode schema.Mode, model schema.ModelID) pslog.Logger {
	if mode != "" {
		log = log.With("mode", mode)
	}
	if model != "" {
		log = log.With("model", model)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithRequest stores the request marker on the context for log de-duplication.
func ContextWithRequest(ctx context.Context, requestID schema.RequestID) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// CopyContextFields copies session/request markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != "" {
		dst = ContextWithSession(dst, session)
	}
	if request, ok := src.Value(requestKey).(schema.RequestID); ok && request != "" {
		dst = ContextWithRequest(dst, request)
	}
	return dst
}
