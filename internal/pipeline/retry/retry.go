// Package retry decides whether a report transport error is worth another
// attempt and runs bounded retries for the ones that are.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient, reason: "explicit_transient"}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTerminal, reason: "explicit_terminal"}
}

func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Class: ClassTransient, Reason: "net_timeout"}
	}

	msg := err.Error()
	for _, prefix := range redisTransientPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return Decision{Class: ClassTransient, Reason: "redis_" + strings.ToLower(prefix)}
		}
	}

	lower := strings.ToLower(msg)
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

// Policy bounds Do. Attempts below 1 mean a single attempt.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Do calls fn until it succeeds, returns a terminal error or the attempts
// run out. The wait doubles after every transient failure.
func Do(ctx context.Context, p Policy, fn func() error) error {
	attempts := max(p.Attempts, 1)
	wait := p.Backoff
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Classify(err).IsTransient() || i == attempts-1 {
			return err
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
			wait *= 2
		}
	}
	return err
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// Error prefixes Redis uses for conditions that clear on their own.
var redisTransientPrefixes = []string{
	"LOADING",
	"BUSY",
	"TRYAGAIN",
	"CLUSTERDOWN",
	"MASTERDOWN",
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"i/o timeout",
	"use of closed network connection",
	"pool timeout",
}

var terminalMessageTokens = []string{
	"wrongtype",
	"noauth",
	"wrongpass",
	"err syntax",
	"unknown command",
	"json: unsupported",
	"redis: client is closed",
}
