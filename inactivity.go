package authflow

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleTimeout is the fixed idle budget before a forced sign-out.
const DefaultIdleTimeout = 10 * time.Minute

// InputEventKind enumerates the UI events the monitor watches.
type InputEventKind string

const (
	InputMouseDown  InputEventKind = "mouse-down"
	InputKeyDown    InputEventKind = "key-down"
	InputTouchStart InputEventKind = "touch-start"
	InputScroll     InputEventKind = "scroll"
	InputFocus      InputEventKind = "focus"
	InputBlur       InputEventKind = "blur"
)

// InputEvent is one UI event.
type InputEvent struct {
	Kind InputEventKind
}

// InputEventSource is the stream of UI events the monitor subscribes to.
type InputEventSource interface {
	OnInputEvent(fn func(InputEvent)) Unsubscribe
}

// InactivityMonitor forcibly signs the visitor out after a fixed idle
// period. Qualifying activity resets the timer only while the window holds
// focus; losing focus neither resets nor cancels the countdown, so switching
// tabs does not produce a surprise logout the moment the visitor returns.
type InactivityMonitor struct {
	source   InputEventSource
	signOut  SessionTerminator
	timeout  time.Duration
	logger   Logger
	sink     ActivitySink
	newTimer func(d time.Duration, fn func()) *time.Timer

	mu      sync.Mutex
	focused bool
	started bool
	stopped bool
	fired   bool
	timer   *time.Timer
	unsub   Unsubscribe
}

// NewInactivityMonitor wires a monitor to an input source and the provider's
// sign-out capability.
func NewInactivityMonitor(source InputEventSource, signOut SessionTerminator) *InactivityMonitor {
	return &InactivityMonitor{
		source:   source,
		signOut:  signOut,
		timeout:  DefaultIdleTimeout,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		focused:  true,
		newTimer: time.AfterFunc,
	}
}

// WithTimeout overrides the idle budget, mainly for tests.
func (m *InactivityMonitor) WithTimeout(timeout time.Duration) *InactivityMonitor {
	if timeout > 0 {
		m.timeout = timeout
	}
	return m
}

func (m *InactivityMonitor) WithLogger(logger Logger) *InactivityMonitor {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *InactivityMonitor) WithActivitySink(sink ActivitySink) *InactivityMonitor {
	m.sink = normalizeActivitySink(sink)
	return m
}

// Start installs the listeners and arms the timer. Installed once at
// application mount; a second Start is a no-op.
func (m *InactivityMonitor) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.armLocked()
	m.mu.Unlock()

	unsub := m.source.OnInputEvent(m.handle)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		unsub()
		return
	}
	m.unsub = unsub
	m.mu.Unlock()
}

// Stop tears the monitor down: listeners removed, pending timer cancelled.
// Idempotent; calling it twice neither throws nor double-removes anything.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *InactivityMonitor) handle(evt InputEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	switch evt.Kind {
	case InputFocus:
		// Regaining focus alone never resets the countdown.
		m.focused = true
	case InputBlur:
		// The timer keeps running while unfocused; only the flag flips.
		m.focused = false
	case InputMouseDown, InputKeyDown, InputTouchStart, InputScroll:
		if m.focused {
			// Activity after an expiry starts the next idle cycle.
			m.fired = false
			m.armLocked()
		}
	}
}

func (m *InactivityMonitor) armLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.newTimer(m.timeout, m.expire)
}

func (m *InactivityMonitor) expire() {
	m.mu.Lock()
	if m.stopped || m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	m.timer = nil
	m.mu.Unlock()

	ctx := context.Background()
	if err := m.signOut.SignOut(ctx); err != nil {
		m.logger.Error("idle timeout sign-out failed: %v", err)
	}

	if err := m.sink.Record(ctx, NewActivityEvent(ActivityEventIdleTimeout, "", nil)); err != nil {
		m.logger.Warn("activity sink error: %v", err)
	}
}
