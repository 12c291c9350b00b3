// Package transport delivers monitor data to observers outside the
// renderer.
package transport

import "errors"

// ErrClosed is returned by Send on a closed transport.
var ErrClosed = errors.New("transport is closed")

// Transport sends processed data or events. Implementations are safe for
// concurrent use and must not block the caller for long; the renderer calls
// Send once per frame.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans every Send out to each transport in order. The first error is
// returned after all transports have been tried.
type Multi []Transport

func (m Multi) Send(data any) error {
	var first error
	for _, t := range m {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
