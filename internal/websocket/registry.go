package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/johndosdos/chatrooms/internal/model"
)

const shardCount = 32

// Peer is a live connection as seen by the registry.
type Peer interface {
	// Enqueue hands frame to the peer's writer without blocking. It reports
	// false when the peer is closed or cannot keep up.
	Enqueue(frame []byte) bool
	// Close tears the peer down. It must be safe to call more than once and
	// must not block.
	Close(code websocket.StatusCode, reason string)
}

// Dispatcher fans a stored message out to its recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message, recipients []int64) error
}

// Registry maps user ids to their live connections. A user may hold several
// connections at once (devices, tabs); a send reaches all of them. Users are
// spread over shards so register/unregister of one user never waits on
// another user's bucket.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	peers map[int64]map[Peer]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].peers = make(map[int64]map[Peer]struct{})
	}

	return r
}

func (r *Registry) shard(userID int64) *shard {
	return &r.shards[uint64(userID)%shardCount]
}

// Register adds p to userID's connections. Earlier connections are kept.
func (r *Registry) Register(userID int64, p Peer) {
	s := r.shard(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.peers[userID]
	if !ok {
		set = make(map[Peer]struct{})
		s.peers[userID] = set
	}
	set[p] = struct{}{}
}

// Unregister removes p from userID's connections. It reports whether p was
// registered; removing an absent peer is a no-op.
func (r *Registry) Unregister(userID int64, p Peer) bool {
	s := r.shard(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.peers[userID]
	if !ok {
		return false
	}
	if _, ok := set[p]; !ok {
		return false
	}

	delete(set, p)
	if len(set) == 0 {
		delete(s.peers, userID)
	}

	return true
}

// Send pushes frame to every connection of userID and reports whether at
// least one accepted it. A connection whose queue is full is considered dead:
// it is unregistered and closed so it cannot hold back other recipients.
func (r *Registry) Send(userID int64, frame []byte) bool {
	peers := r.snapshot(userID)
	if len(peers) == 0 {
		return false
	}

	delivered := false
	for _, p := range peers {
		if p.Enqueue(frame) {
			delivered = true
			continue
		}

		if r.Unregister(userID, p) {
			slog.Warn("dropping slow connection",
				"user_id", userID)
		}
		p.Close(websocket.StatusPolicyViolation, "connection too slow")
	}

	return delivered
}

// Dispatch delivers msg to the local connections of recipients. Offline
// recipients are skipped.
func (r *Registry) Dispatch(ctx context.Context, msg model.Message, recipients []int64) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode broadcast: %w", ErrDeliveryFailure, err)
	}

	delivered := 0
	for _, userID := range recipients {
		if r.Send(userID, frame) {
			delivered++
		}
	}

	slog.DebugContext(ctx, "message fanned out",
		"message_id", msg.ID,
		"chat_room_id", msg.ChatRoomID,
		"recipients", len(recipients),
		"delivered", delivered)

	return nil
}

// Count returns the number of live connections of userID.
func (r *Registry) Count(userID int64) int {
	s := r.shard(userID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.peers[userID])
}

// Len returns the number of live connections across all users.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.peers {
			n += len(set)
		}
		s.mu.RUnlock()
	}

	return n
}

// CloseAll closes every registered connection, e.g. on server shutdown.
// Connections unregister themselves as their sessions end.
func (r *Registry) CloseAll(code websocket.StatusCode, reason string) int {
	var peers []Peer
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.peers {
			for p := range set {
				peers = append(peers, p)
			}
		}
		s.mu.RUnlock()
	}

	for _, p := range peers {
		p.Close(code, reason)
	}

	return len(peers)
}

func (r *Registry) snapshot(userID int64) []Peer {
	s := r.shard(userID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.peers[userID]
	peers := make([]Peer, 0, len(set))
	for p := range set {
		peers = append(peers, p)
	}

	return peers
}
