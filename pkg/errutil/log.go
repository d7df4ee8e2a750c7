// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code and context.
// For standard errors, it logs the error string.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []slog.Attr{
			slog.String("error", oopsErr.Error()),
		}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, slog.Any("code", code))
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			attrs = append(attrs, slog.Any("context", errCtx))
		}
		logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
		return
	}
	logger.LogAttrs(ctx, slog.LevelError, msg, slog.Any("error", err))
}
