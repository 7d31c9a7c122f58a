package live

import "sync/atomic"

// Mailbox is a single-slot, latest-wins hand-off between two goroutines. Set
// transfers ownership of the value to the mailbox; Take transfers it to the
// taker, so every value is taken at most once.
type Mailbox[T any] struct {
	p atomic.Pointer[T]
}

// Set replaces any value not yet taken.
func (m *Mailbox[T]) Set(v *T) { m.p.Store(v) }

// Take empties the mailbox and returns its value, or nil if nothing was set
// since the last Take.
func (m *Mailbox[T]) Take() *T { return m.p.Swap(nil) }

// Peek returns the current value without taking it. The value must be treated
// as read-only.
func (m *Mailbox[T]) Peek() *T { return m.p.Load() }
