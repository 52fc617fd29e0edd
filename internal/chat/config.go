package chat

import "time"

const (
	DefaultHistoryWindow  = 10
	DefaultRequestTimeout = 30 * time.Second
)

// Config is the immutable per-request settings snapshot. A send keeps
// the value it started with even if the caller swaps settings mid-flight.
type Config struct {
	Endpoint          string
	AuthToken         string
	SystemInstruction string
	HistoryWindow     int
	RequestTimeout    time.Duration
}

// normalized returns a copy with the bounds applied: the window is at
// least one turn and the timeout is positive.
func (c Config) normalized() Config {
	if c.HistoryWindow < 1 {
		c.HistoryWindow = 1
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}
