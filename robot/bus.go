package robot

import "sync"

// Per-subscriber buffer. A subscriber that falls this far behind is
// dropped and must subscribe again.
const commandBuffer = 64

type SubscriberID int

// CommandBus broadcasts commands to all current subscribers. Delivery is
// best-effort: publishing never blocks, late subscribers see no history,
// and lagging subscribers are evicted (their channel is closed).
type CommandBus struct {
	mu     sync.Mutex
	subs   map[SubscriberID]chan Command
	nextID SubscriberID
}

func NewCommandBus() *CommandBus {
	return &CommandBus{subs: make(map[SubscriberID]chan Command)}
}

func (b *CommandBus) Subscribe() (SubscriberID, <-chan Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan Command, commandBuffer)
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

func (b *CommandBus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *CommandBus) Publish(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- cmd:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

func (b *CommandBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
