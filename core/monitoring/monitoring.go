// Package monitoring holds the process wide error reporter. Core packages
// report through the package functions; infra/monitoring installs the Sentry
// implementation at startup.
package monitoring

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor reports unexpected failures.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// Recover must be deferred directly. It reports a panic and re-panics.
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ m Monitor }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{m: NopMonitor{}}) }

// Init installs m. A nil m restores the no-op monitor.
func Init(m Monitor) {
	if m == nil {
		m = NopMonitor{}
	}
	current.Store(&holder{m: m})
}

// Current returns the installed monitor.
func Current() Monitor { return current.Load().m }

// CaptureException reports err with optional tags. A nil err is ignored.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	Current().CaptureException(err, tags)
}

// Recover reports a panic in the calling goroutine. It must be deferred
// directly by the goroutine that may panic.
func Recover() {
	if r := recover(); r != nil {
		m := Current()
		if _, nop := m.(NopMonitor); !nop {
			m.CaptureException(panicError{value: r}, map[string]string{"panic": "true"})
			m.Flush(2 * time.Second)
		}
		panic(r)
	}
}

// Go runs fn in a goroutine tracked by wg. A panic in fn is reported
// with the component tag before the process crashes.
func Go(wg *sync.WaitGroup, component string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m := Current()
				m.CaptureException(panicError{value: r}, map[string]string{"component": component, "panic": "true"})
				m.Flush(2 * time.Second)
				panic(r)
			}
		}()
		fn()
	}()
}

// Flush waits for buffered reports to be sent.
func Flush(d time.Duration) { Current().Flush(d) }

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }
