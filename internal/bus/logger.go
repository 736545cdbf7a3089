// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package bus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/quickserve-labs/dropdeck/internal/logging"
)

// loggerAdapter routes watermill's internal logging through zerolog so bus
// output matches the rest of the process. Info maps to debug; watermill
// logs routine delivery at info level and that is noise for operators.
type loggerAdapter struct {
	fields watermill.LogFields
}

func newLoggerAdapter() watermill.LoggerAdapter {
	return &loggerAdapter{}
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	ev := logging.Error().Err(err)
	l.apply(ev, fields)
	ev.Msg(msg)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	l.apply(ev, fields)
	ev.Msg(msg)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	ev := logging.Debug()
	l.apply(ev, fields)
	ev.Msg(msg)
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	ev := logging.Trace()
	l.apply(ev, fields)
	ev.Msg(msg)
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{fields: l.fields.Add(fields)}
}

func (l *loggerAdapter) apply(ev *zerolog.Event, fields watermill.LogFields) {
	for k, v := range l.fields {
		ev.Interface(k, v)
	}
	for k, v := range fields {
		ev.Interface(k, v)
	}
}
