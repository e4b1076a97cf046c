package chanutils

import (
	"fmt"
	"time"
)

// RecvOrTimeout attempts to recv over chan c, returning the value. If the
// timeout passes before the recv succeeds, an error is returned
func RecvOrTimeout[T any](c <-chan T, timeout time.Duration) (*T, error) {
	select {
	case m := <-c:
		return &m, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout hit")
	}
}

// SendOrQuit attempts to send a message through channel c. If this succeeds,
// then true is returned. Otherwise if a quit signal is received first, then
// false is returned.
func SendOrQuit[T any, Q any](c chan<- T, msg T, quit chan Q) bool {
	select {
	case c <- msg:
		return true
	case <-quit:
		return false
	}
}

// Collect receives all values from a channel and returns them as a slice.
//
// NOTE: This function closes the channel to be able to collect all items at
// once.
func Collect[T any](c chan T) []T {
	close(c)

	var out []T
	for m := range c {
		out = append(out, m)
	}

	return out
}
