package channel

import (
	"sync"

	"github.com/clyfe/systems-toolbox/errors"
	"github.com/clyfe/systems-toolbox/message"
)

// Chan is a thread-safe message channel over a circular buffer.
//
// A FIFO channel (KindBuffer) preserves order and blocks producers at
// capacity. A sliding channel (KindSliding) discards the oldest element on
// overflow so producers never block.
type Chan struct {
	mu       sync.Mutex
	items    []message.Message
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	sliding  bool

	stats   *Statistics  // always initialized
	metrics *chanMetrics // optional Prometheus metrics
	opts    *chanOptions

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

// New creates a channel from a buffer spec. An unknown spec is a
// configuration error. Capacity below 1 is raised to 1.
func New(spec BufferSpec, options ...Option) (*Chan, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	capacity := spec.Size
	if capacity < 1 {
		capacity = 1
	}

	opts := applyOptions(options...)

	var metrics *chanMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newChanMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "channel", "New", "metrics registration")
		}
	}

	c := &Chan{
		items:    make([]message.Message, capacity),
		capacity: capacity,
		sliding:  spec.IsSliding(),
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)

	return c, nil
}

// MustNew is New for specs known valid at compile time. It panics on error
// and is intended for internal wiring, not user configuration.
func MustNew(spec BufferSpec, options ...Option) *Chan {
	c, err := New(spec, options...)
	if err != nil {
		panic(err)
	}
	return c
}

// Put adds a message to the channel. FIFO channels block when full until a
// reader makes room or the channel closes; sliding channels drop the oldest
// message and return immediately. Put on a closed channel returns an
// invalid-classified error.
func (c *Chan) Put(msg message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapInvalid(errors.ErrChannelClosed, "Chan", "Put", "write")
	}

	if c.size == c.capacity {
		if c.sliding {
			dropped := c.items[c.tail]
			c.tail = (c.tail + 1) % c.capacity
			c.size--

			c.stats.Overflow()
			c.stats.Drop()
			if c.metrics != nil {
				c.metrics.recordOverflow()
				c.metrics.recordDrop()
			}

			if c.opts.dropCallback != nil {
				// Deferred so the callback observes the completed write;
				// it must not call back into this channel
				defer c.opts.dropCallback(dropped)
			}
		} else {
			for c.size == c.capacity && !c.closed {
				c.notFull.Wait()
			}
			if c.closed {
				return errors.WrapInvalid(errors.ErrChannelClosed, "Chan", "Put",
					"write during blocking wait")
			}
		}
	}

	c.items[c.head] = msg
	c.head = (c.head + 1) % c.capacity
	c.size++

	c.stats.Write()
	c.stats.UpdateSize(int64(c.size))
	if c.metrics != nil {
		c.metrics.recordWrite(c.size, c.capacity)
	}

	c.notEmpty.Signal()
	return nil
}

// Take removes and returns the oldest message, blocking until one is
// available or the channel is closed. After close, buffered messages are
// drained before ok turns false.
func (c *Chan) Take() (message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.size == 0 && !c.closed {
		c.notEmpty.Wait()
	}

	if c.size == 0 {
		return message.Message{}, false
	}

	return c.pop(), true
}

// pop removes the tail element. Caller holds the lock and has checked size.
func (c *Chan) pop() message.Message {
	item := c.items[c.tail]
	c.items[c.tail] = message.Message{} // clear for GC
	c.tail = (c.tail + 1) % c.capacity
	c.size--

	c.stats.Read()
	c.stats.UpdateSize(int64(c.size))
	if c.metrics != nil {
		c.metrics.recordRead(c.size, c.capacity)
	}

	c.notFull.Signal()
	return item
}

// Len returns the current number of buffered messages.
func (c *Chan) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Cap returns the buffer capacity.
func (c *Chan) Cap() int {
	return c.capacity // immutable, no lock needed
}

// Sliding reports whether this channel drops oldest on overflow.
func (c *Chan) Sliding() bool {
	return c.sliding
}

// Closed reports whether Close has been called.
func (c *Chan) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stats returns channel statistics (always available for observability).
func (c *Chan) Stats() *Statistics {
	return c.stats
}

// Close shuts the channel. Pending Take calls drain remaining messages and
// then report closed; blocked Put calls fail. Close is idempotent.
func (c *Chan) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}
