package transport

import (
	"sync/atomic"

	"nimbus/internal/log"
)

var transportLog = log.Named("transport")

// LoggingTransport writes every message to the debug log.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	transportLog.Infof("using logging transport")
	return &LoggingTransport{}
}

// Send logs data at debug level. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)
	transportLog.Debugf("#%d %T %+v", n, data, data)
	return nil
}

// Sent returns the number of messages logged so far.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

func (lt *LoggingTransport) Close() error {
	transportLog.Debugf("logging transport closed after %d messages", lt.sent.Load())
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
