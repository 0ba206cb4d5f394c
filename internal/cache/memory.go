package cache

import (
	"context"
	"sync"

	"github.com/johndosdos/chatrooms/internal/model"
)

// Memory is an in-process cache. The room map lock is only held to find or
// create a room; pushes to a room serialize on that room's own lock.
type Memory struct {
	capacity int

	mu    sync.RWMutex
	rooms map[int64]*ring
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Memory{
		capacity: capacity,
		rooms:    make(map[int64]*ring),
	}
}

func (c *Memory) Push(_ context.Context, chatRoomID int64, msg model.Message) error {
	r := c.room(chatRoomID)

	r.mu.Lock()
	r.push(msg)
	r.mu.Unlock()

	return nil
}

func (c *Memory) List(_ context.Context, chatRoomID int64) ([]model.Message, error) {
	c.mu.RLock()
	r, ok := c.rooms[chatRoomID]
	c.mu.RUnlock()

	if !ok {
		return []model.Message{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list(), nil
}

func (c *Memory) Warm(_ context.Context, chatRoomID int64, msgs []model.Message) error {
	r := c.room(chatRoomID)

	r.mu.Lock()
	defer r.mu.Unlock()

	merged := merge(r.list(), msgs, c.capacity)
	r.reset()
	for i := len(merged) - 1; i >= 0; i-- {
		r.push(merged[i])
	}

	return nil
}

func (c *Memory) room(chatRoomID int64) *ring {
	c.mu.RLock()
	r, ok := c.rooms[chatRoomID]
	c.mu.RUnlock()

	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok = c.rooms[chatRoomID]; !ok {
		r = &ring{buf: make([]model.Message, c.capacity)}
		c.rooms[chatRoomID] = r
	}

	return r
}

// ring is a fixed-size circular buffer; head is the slot of the newest entry.
type ring struct {
	mu   sync.Mutex
	buf  []model.Message
	head int
	size int
}

func (r *ring) push(msg model.Message) {
	r.head = (r.head + 1) % len(r.buf)
	r.buf[r.head] = msg
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) list() []model.Message {
	out := make([]model.Message, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head-i+len(r.buf))%len(r.buf)]
	}

	return out
}

func (r *ring) reset() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}
