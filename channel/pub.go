package channel

import (
	"sync"

	"github.com/clyfe/systems-toolbox/message"
)

// KeyFn extracts the routing topic from a message.
type KeyFn func(msg message.Message) string

// KeyByType routes on the message's type key ("domain/name"). This is the
// key function the component runtime partitions its out-channel with.
func KeyByType(msg message.Message) string {
	return msg.Type.Key()
}

// Pub is a topic publisher: a fan-out partitioned by a key function. Each
// subscriber chooses which topics to receive. When the source closes, all
// subscriber channels are closed after the remaining messages route.
type Pub struct {
	src   *Chan
	keyFn KeyFn

	mu     sync.Mutex
	topics map[string]map[*Chan]struct{}
	done   chan struct{}
}

// NewPub creates a publisher over src keyed by keyFn and starts its router.
func NewPub(src *Chan, keyFn KeyFn) *Pub {
	p := &Pub{
		src:    src,
		keyFn:  keyFn,
		topics: make(map[string]map[*Chan]struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Sub subscribes ch to a topic.
func (p *Pub) Sub(topic string, ch *Chan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs, ok := p.topics[topic]
	if !ok {
		subs = make(map[*Chan]struct{})
		p.topics[topic] = subs
	}
	subs[ch] = struct{}{}
}

// Unsub removes ch from a topic. The channel itself is left open.
func (p *Pub) Unsub(topic string, ch *Chan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if subs, ok := p.topics[topic]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(p.topics, topic)
		}
	}
}

// Done is closed once the source has closed and all messages are routed.
func (p *Pub) Done() <-chan struct{} {
	return p.done
}

func (p *Pub) run() {
	defer close(p.done)

	for {
		msg, ok := p.src.Take()
		if !ok {
			p.closeSubs()
			return
		}

		topic := p.keyFn(msg)
		for _, sub := range p.snapshot(topic) {
			if err := sub.Put(msg); err != nil {
				p.Unsub(topic, sub)
			}
		}
	}
}

func (p *Pub) snapshot(topic string) []*Chan {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs, ok := p.topics[topic]
	if !ok {
		return nil
	}
	out := make([]*Chan, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}

func (p *Pub) closeSubs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, subs := range p.topics {
		for sub := range subs {
			sub.Close()
		}
	}
	p.topics = make(map[string]map[*Chan]struct{})
}
