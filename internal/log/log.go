// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log provides the logging seam every nvcfg component takes a
// handle to, shaped like the teacher's own minimal log.Helper/Logger call
// sites (Debugf/Infof/Errorf, level-filtered) but backed by zap's
// SugaredLogger.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Helper is a thin, leveled logging facade. The zero value is not usable;
// construct one with NewHelper or NewNop.
type Helper struct {
	sugar *zap.SugaredLogger
}

// NewHelper wraps an existing zap logger.
func NewHelper(l *zap.Logger) *Helper {
	return &Helper{sugar: l.Sugar()}
}

// NewNop returns a Helper that discards everything, the default for
// library use (mirrors the teacher defaulting to a filtered stdout
// logger when the caller supplies none).
func NewNop() *Helper {
	return &Helper{sugar: zap.NewNop().Sugar()}
}

// NewDevelopment returns a Helper with a human-readable console encoder at
// debug level, used by the CLI when -v is given.
func NewDevelopment() *Helper {
	ec := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(os.Stderr), zapcore.DebugLevel)
	return &Helper{sugar: zap.New(core).Sugar()}
}

// NewProduction returns a Helper at info level. The CLI does not use it: it
// logs through NewNop by default and NewDevelopment when -v is given.
func NewProduction() *Helper {
	ec := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return &Helper{sugar: zap.New(core).Sugar()}
}

func (h *Helper) Debugf(format string, args ...any) {
	if h == nil {
		return
	}
	h.sugar.Debugf(format, args...)
}

func (h *Helper) Infof(format string, args ...any) {
	if h == nil {
		return
	}
	h.sugar.Infof(format, args...)
}

func (h *Helper) Errorf(format string, args ...any) {
	if h == nil {
		return
	}
	h.sugar.Errorf(format, args...)
}

// Sync flushes any buffered log entries.
func (h *Helper) Sync() error {
	if h == nil {
		return nil
	}
	return h.sugar.Sync()
}
