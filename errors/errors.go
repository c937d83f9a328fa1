// Package errors provides a small error accumulation utility used by
// validation code that wants to report every problem in one pass.
package errors

import "errors"

// Collection accumulates errors from a sequence of checks and hands them
// back as one combined error. It is not safe for concurrent use.
type Collection struct {
	errors []error
}

// Add appends an error to the collection. Nil errors are ignored.
func (c *Collection) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// Clear removes all errors from the collection.
func (c *Collection) Clear() {
	c.errors = nil
}

// HasError reports whether the collection holds at least one error.
func (c *Collection) HasError() bool {
	return len(c.errors) > 0
}

// GetError returns nil for an empty collection, the error itself when there
// is exactly one, and an errors.Join of everything otherwise. The joined
// error matches errors.Is and errors.As against every member.
func (c *Collection) GetError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}
