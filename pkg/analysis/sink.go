package analysis

import (
	"context"
	"errors"
)

// Sink receives completed analyses. origin names where the message came
// from: a file path for batch runs, "smtp:<sender>" for intake.
type Sink interface {
	HandleResult(ctx context.Context, origin string, r *Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, origin string, r *Result) error

func (f SinkFunc) HandleResult(ctx context.Context, origin string, r *Result) error {
	return f(ctx, origin, r)
}

// Dispatch hands r to every sink and joins their errors. A failing sink does
// not stop the others.
func Dispatch(ctx context.Context, sinks []Sink, origin string, r *Result) error {
	var errs []error
	for _, s := range sinks {
		if err := s.HandleResult(ctx, origin, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
