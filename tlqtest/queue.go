package tlqtest

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tlq-client/message"
)

// DefaultLock is how long a fetched message stays Processing in a Queue.
const DefaultLock = 30 * time.Second

// Queue is the in-memory state behind a Server. It is exported so tests can seed it and
// look at it directly.
type Queue struct {
	mu    sync.Mutex
	order []uuid.UUID // insertion order
	msgs  map[uuid.UUID]*message.Message
	lock  time.Duration
	now   func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		msgs: make(map[uuid.UUID]*message.Message),
		lock: DefaultLock,
		now:  time.Now,
	}
}

// Add stores a new Ready message.
func (q *Queue) Add(body string) message.Message {
	msg := message.New(body)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs[msg.ID] = &msg
	q.order = append(q.order, msg.ID)
	return msg
}

// Get hands out up to count Ready messages, oldest first, and marks them Processing.
// Messages whose lock expired count as Ready again.
func (q *Queue) Get(count int) []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	out := make([]message.Message, 0, min(count, len(q.order)))
	for _, id := range q.order {
		if len(out) == count {
			break
		}
		msg := q.msgs[id]
		if msg.State != message.StateReady && !q.expired(msg, now) {
			continue
		}
		lockUntil := now.Add(q.lock).UTC().Format(time.RFC3339Nano)
		msg.State = message.StateProcessing
		msg.LockUntil = &lockUntil
		out = append(out, *msg)
	}
	return out
}

func (q *Queue) expired(msg *message.Message, now time.Time) bool {
	if msg.State != message.StateProcessing || msg.LockUntil == nil {
		return false
	}
	until, err := time.Parse(time.RFC3339Nano, *msg.LockUntil)
	return err == nil && now.After(until)
}

// Delete removes ids and reports how many existed.
func (q *Queue) Delete(ids []uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := q.msgs[id]; ok {
			delete(q.msgs, id)
			n++
		}
	}
	if n > 0 {
		kept := q.order[:0]
		for _, id := range q.order {
			if _, ok := q.msgs[id]; ok {
				kept = append(kept, id)
			}
		}
		q.order = kept
	}
	return n
}

// Retry puts ids back to Ready and bumps their retry count. It reports how many existed.
func (q *Queue) Retry(ids []uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, id := range ids {
		if msg, ok := q.msgs[id]; ok {
			msg.State = message.StateReady
			msg.LockUntil = nil
			msg.RetryCount++
			n++
		}
	}
	return n
}

// Purge drops everything and returns how many messages were dropped.
func (q *Queue) Purge() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.msgs)
	q.msgs = make(map[uuid.UUID]*message.Message)
	q.order = nil
	return n
}

// Len is the number of stored messages in any state.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Message returns a copy of the message with the given id.
func (q *Queue) Message(id uuid.UUID) (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.msgs[id]
	if !ok {
		return message.Message{}, false
	}
	return *msg, true
}
