package samp

import "time"

// Logger is the logging contract used by the hub, connections and proxies.
// A nil Logger disables logging.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type Clock interface {
	Now() time.Time
}
