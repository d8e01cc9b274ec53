package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingInit
	StateActive
	StateClosed
)

// Session is one live WebSocket connection: its principal (user id or guest
// id), its wheel slot, and the subscription sets it joined. The read loop
// runs on the caller's goroutine (Room.Serve); all writes go through the
// connWriter goroutine.
type Session struct {
	conn   *websocket.Conn
	writer *connWriter
	room   *Room

	principal string
	guest     bool

	state atomic.Int32
	slot  atomic.Int32

	subMu  sync.Mutex
	subIDs []uuid.UUID

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, room *Room, clock clockwork.Clock) *Session {
	s := &Session{
		conn:   conn,
		writer: newConnWriter(conn, clock),
		room:   room,
	}
	s.slot.Store(-1)
	s.state.Store(int32(StateConnecting))
	return s
}

// wheelSlot and setWheelSlot implement Entry. The wheel mutates the slot
// index only under the owning slot's lock.
func (s *Session) wheelSlot() int     { return int(s.slot.Load()) }
func (s *Session) setWheelSlot(i int) { s.slot.Store(int32(i)) }

// Principal returns the authenticated user id or the generated guest id.
func (s *Session) Principal() string { return s.principal }

// Guest reports whether the session runs under an ephemeral guest principal.
func (s *Session) Guest() bool { return s.guest }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Closed reports whether teardown has run (or started).
func (s *Session) Closed() bool { return s.State() == StateClosed }

// SubscriptionIDs returns a copy of the subscription-set ids this session
// has joined.
func (s *Session) SubscriptionIDs() []uuid.UUID {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ids := make([]uuid.UUID, len(s.subIDs))
	copy(ids, s.subIDs)
	return ids
}

func (s *Session) addSubscription(subID uuid.UUID) {
	s.subMu.Lock()
	s.subIDs = append(s.subIDs, subID)
	s.subMu.Unlock()
}

// send queues a server frame for delivery. Best effort: a full buffer drops
// the frame.
func (s *Session) send(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal server frame", "type", frame.Type, "error", err)
		return
	}
	if !s.writer.trySend(data) {
		metrics.DeliveryDropsTotal.WithLabelValues("slow").Inc()
	}
}

// close tears the session down exactly once: off the wheel, out of every
// joined subscription set, untracked from the room, close frame written.
// Transport-driven and timeout-driven paths both land here and may race.
func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.room.wheel.Remove(s)
		s.room.registry.LeaveAll(s, s.SubscriptionIDs())
		s.room.untrack(s)
		s.writer.stopWithClose(code, reason)
		metrics.GatewayActiveConnections.Dec()
	})
}
