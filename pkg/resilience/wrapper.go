// Package resilience wraps outbound calls to unreliable upstreams with
// failure classification and per-path cooldowns. A path that keeps failing
// is suspended for a class-specific window and always self-reactivates;
// nothing here disables a path permanently.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/profile-agent/pkg/logger"
)

// Class identifies why an upstream call failed.
type Class string

const (
	ClassTransient  Class = "transient-network"
	ClassQuota      Class = "quota-exceeded"
	ClassPermission Class = "permission-denied"
	ClassNotFound   Class = "not-found"
	ClassUnknown    Class = "unknown"
)

// Cooldown windows per class. Permission and not-found never suspend:
// the former needs operator intervention, the latter is not an error.
const (
	transientCooldown = 30 * time.Second
	quotaCooldown     = 120 * time.Second
	unknownCooldown   = 10 * time.Second
)

// ErrNotFound is returned when the upstream reports no data for the call.
// Callers treat it as an empty result, not a failure.
var ErrNotFound = errors.New("upstream resource not found")

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// SuspendedError is returned while a path is cooling down. The call was
// not attempted against the upstream.
type SuspendedError struct {
	Path  string
	Class Class
	Until time.Time
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("call path %q suspended (%s) until %s", e.Path, e.Class, e.Until.Format(time.RFC3339))
}

// IsSuspended reports whether err means the path was skipped on cooldown.
func IsSuspended(err error) bool {
	var se *SuspendedError
	return errors.As(err, &se)
}

type pathState struct {
	suspendedUntil time.Time
	class          Class
}

// Wrapper tracks suspension state per call path.
type Wrapper struct {
	mu    sync.Mutex
	paths map[string]*pathState

	now func() time.Time
	log *logger.Logger
}

// New creates a wrapper.
func New(log *logger.Logger) *Wrapper {
	return &Wrapper{
		paths: make(map[string]*pathState),
		now:   time.Now,
		log:   log.WithComponent("resilience"),
	}
}

// NewWithClock creates a wrapper with an injectable clock for tests.
func NewWithClock(log *logger.Logger, now func() time.Time) *Wrapper {
	w := New(log)
	w.now = now
	return w
}

// Do runs fn unless path is suspended. On failure the error is classified
// and the path suspended per class; not-found is mapped to ErrNotFound.
func (w *Wrapper) Do(ctx context.Context, path string, fn func(context.Context) error) error {
	if until, class, suspended := w.suspended(path); suspended {
		return &SuspendedError{Path: path, Class: class, Until: until}
	}

	err := fn(ctx)
	if err == nil {
		w.clear(path)
		return nil
	}

	class := Classify(err)
	w.record(path, class)

	if class == ClassNotFound {
		return ErrNotFound
	}
	return err
}

// Suspended reports whether a path is currently cooling down.
func (w *Wrapper) Suspended(path string) bool {
	_, _, suspended := w.suspended(path)
	return suspended
}

func (w *Wrapper) suspended(path string) (time.Time, Class, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.paths[path]
	if !ok {
		return time.Time{}, "", false
	}
	if w.now().Before(st.suspendedUntil) {
		return st.suspendedUntil, st.class, true
	}
	// Cooldown elapsed; the path reactivates on its own.
	delete(w.paths, path)
	return time.Time{}, "", false
}

func (w *Wrapper) clear(path string) {
	w.mu.Lock()
	delete(w.paths, path)
	w.mu.Unlock()
}

func (w *Wrapper) record(path string, class Class) {
	cooldown := cooldownFor(class)
	if cooldown == 0 {
		return
	}

	until := w.now().Add(cooldown)
	w.mu.Lock()
	w.paths[path] = &pathState{suspendedUntil: until, class: class}
	w.mu.Unlock()

	w.log.Warn().
		Str("path", path).
		Str("class", string(class)).
		Time("until", until).
		Msg("Call path suspended")
}

func cooldownFor(class Class) time.Duration {
	switch class {
	case ClassTransient:
		return transientCooldown
	case ClassQuota:
		return quotaCooldown
	case ClassUnknown:
		return unknownCooldown
	default:
		return 0
	}
}

// Classify maps an upstream error to a failure class. Status codes win
// over message patterns when both are available.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == 404:
			return ClassNotFound
		case code == 401 || code == 403:
			return ClassPermission
		case code == 429:
			return ClassQuota
		case code >= 500:
			return ClassTransient
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"):
		return ClassQuota
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"):
		return ClassPermission
	case strings.Contains(msg, "not found"):
		return ClassNotFound
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"):
		return ClassTransient
	}

	return ClassUnknown
}
