package audit

import (
	"context"
	"errors"
)

// MultiLogger fans events out to several sinks. Every sink sees every
// event; errors are collected rather than short-circuiting, so one
// failing sink does not starve the others.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines sinks into one logger. Zero sinks behaves
// like NopLogger.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiLogger) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
