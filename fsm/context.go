package fsm

import (
	"maps"
	"sync"
	"time"
)

// Context is a thread-safe container for the machine's mutable state: the
// current and previous state values, an arbitrary key/value store shared by
// guards, actions, and handlers, the last error recorded by FireEvent, and
// the time of the last state change.
//
// The machine owns its Context for its whole lifetime and mutates the state
// fields only inside the transition execution protocol. The data store may be
// read and written from any goroutine; individual accessors are atomic.
type Context[S, E comparable] struct {
	mu             sync.RWMutex
	current        S
	previous       S
	data           map[string]any
	lastErr        error
	lastTransition time.Time
}

func newContext[S, E comparable](initial S, now time.Time) *Context[S, E] {
	return &Context[S, E]{
		current:        initial,
		data:           make(map[string]any),
		lastTransition: now,
	}
}

// CurrentState returns the state the machine is in right now.
func (c *Context[S, E]) CurrentState() S {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.current
}

// PreviousState returns the state before the last transition, or the zero
// value of S if no transition has happened yet.
func (c *Context[S, E]) PreviousState() S {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.previous
}

// LastTransitionTime returns the time of the last state change, or the
// machine's creation time if no state change has happened yet.
func (c *Context[S, E]) LastTransitionTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastTransition
}

// LastError returns the error recorded by the most recent failed FireEvent,
// or nil. Reset clears it.
func (c *Context[S, E]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastErr
}

// Put stores a value in the context data.
func (c *Context[S, E]) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = value
}

// Get retrieves a value from the context data.
func (c *Context[S, E]) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.data[key]

	return val, ok
}

// GetString retrieves a string value from the context data.
func (c *Context[S, E]) GetString(key string) (string, bool) {
	val, ok := c.Get(key)
	if !ok {
		return "", false
	}

	str, ok := val.(string)

	return str, ok
}

// GetBool retrieves a boolean value from the context data.
func (c *Context[S, E]) GetBool(key string) (bool, bool) {
	val, ok := c.Get(key)
	if !ok {
		return false, false
	}

	b, ok := val.(bool)

	return b, ok
}

// GetInt retrieves an integer value from the context data.
func (c *Context[S, E]) GetInt(key string) (int, bool) {
	val, ok := c.Get(key)
	if !ok {
		return 0, false
	}

	i, ok := val.(int)

	return i, ok
}

// Contains reports whether the context data holds the given key.
func (c *Context[S, E]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.data[key]

	return ok
}

// Remove deletes a key from the context data and returns the removed value.
func (c *Context[S, E]) Remove(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, ok := c.data[key]
	delete(c.data, key)

	return val, ok
}

// Clear removes all keys from the context data. State fields and the last
// error are untouched; only Reset clears those.
func (c *Context[S, E]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.data)
}

// Data returns a copy of the context data.
func (c *Context[S, E]) Data() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.data)
}

// Value retrieves a typed value from the context data. It returns the zero
// value and false when the key is absent or holds a different type.
func Value[T any, S, E comparable](c *Context[S, E], key string) (T, bool) {
	val, ok := c.Get(key)
	if !ok {
		var zero T

		return zero, false
	}

	typed, ok := val.(T)

	return typed, ok
}

// setCurrentState records a state change, moving the old current state into
// previous and stamping the transition time.
func (c *Context[S, E]) setCurrentState(state S, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.previous = c.current
	c.current = state
	c.lastTransition = now
}

func (c *Context[S, E]) setLastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err
}

func (c *Context[S, E]) clearLastError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = nil
}
