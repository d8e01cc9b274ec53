package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AIGun-Labs/aigun-backend/internal/auth"
	apperrors "github.com/AIGun-Labs/aigun-backend/internal/errors"
	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

// MessageHandler receives inbound frames whose type is not part of the
// built-in protocol.
type MessageHandler func(ctx context.Context, s *Session, env Envelope) error

// AgentFollower manages user-level agent follow state on behalf of active
// sessions.
type AgentFollower interface {
	Follow(ctx context.Context, principal, agentID string) error
	Unfollow(ctx context.Context, principal, agentID string) error
}

// RoomConfig carries the timing constants of the heartbeat mechanism.
type RoomConfig struct {
	WheelSize         int
	Tick              time.Duration
	InitialGraceTicks int // wheel delay assigned on handshake
	HeartbeatTicks    int // wheel delay assigned on every heartbeat
}

// DefaultRoomConfig mirrors the production constants: 300 slots, 1s tick,
// 60-tick initial grace, 120-tick sliding expiry.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		WheelSize:         300,
		Tick:              time.Second,
		InitialGraceTicks: 60,
		HeartbeatTicks:    120,
	}
}

// Room owns every live session, the timeout wheel that evicts idle ones,
// and the registry the broadcast engine resolves targets against. A single
// advancer goroutine ticks the wheel; eviction is the sole liveness
// mechanism — there is no transport-level ping/pong timeout.
type Room struct {
	cfg      RoomConfig
	clock    clockwork.Clock
	wheel    *TimeoutWheel
	registry *Registry
	checker  auth.Checker
	follower AgentFollower
	handler  MessageHandler

	mu       sync.Mutex
	sessions map[*Session]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRoom creates a room and starts its wheel advancer.
func NewRoom(cfg RoomConfig, registry *Registry, checker auth.Checker, follower AgentFollower, handler MessageHandler, clock clockwork.Clock) *Room {
	r := &Room{
		cfg:      cfg,
		clock:    clock,
		wheel:    NewTimeoutWheel(cfg.WheelSize),
		registry: registry,
		checker:  checker,
		follower: follower,
		handler:  handler,
		sessions: make(map[*Session]struct{}),
		stopCh:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Registry returns the room's subscription registry.
func (r *Room) Registry() *Registry { return r.registry }

// ConnectionCount returns the number of live sessions.
func (r *Room) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop halts the advancer and closes every live session.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.mu.Lock()
	open := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		s.close(websocket.CloseGoingAway, "Server shutting down")
	}
	slog.Info("Room stopped", "closed_sessions", len(open))
}

func (r *Room) run() {
	defer r.wg.Done()
	ticker := r.clock.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.advance()
		case <-r.stopCh:
			return
		}
	}
}

// advance drains the wheel's current slot and tears down every expired
// session. Closing the transport also unblocks the session's read loop.
func (r *Room) advance() {
	for _, entry := range r.wheel.Advance() {
		s, ok := entry.(*Session)
		if !ok {
			continue
		}
		metrics.GatewayEvictionsTotal.Inc()
		slog.Debug("Evicting idle connection", "principal", s.Principal())
		s.close(websocket.CloseGoingAway, "Heartbeat timeout")
	}
}

func (r *Room) track(s *Session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	metrics.GatewayActiveConnections.Inc()
}

func (r *Room) untrack(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// Serve runs the session lifecycle on the caller's goroutine: handshake
// (init frame, optional credential, optional subscription joins), then the
// read loop until transport close, protocol error, or wheel eviction.
// header supplies the fallback Authorization value when the init payload
// carries none.
func (r *Room) Serve(ctx context.Context, conn *websocket.Conn, header http.Header) {
	s := newSession(conn, r, r.clock)
	r.track(s)
	r.wheel.Schedule(s, r.cfg.InitialGraceTicks)
	s.state.Store(int32(StateAwaitingInit))
	defer s.close(websocket.CloseNormalClosure, "")

	if !r.handleInit(ctx, s, header) {
		return
	}

	s.state.Store(int32(StateActive))
	r.readLoop(ctx, s)
}

// handleInit consumes the first frame and performs authentication and
// subscription joins. Returns false when the session was closed.
func (r *Room) handleInit(ctx context.Context, s *Session, header http.Header) bool {
	env, err := r.readEnvelope(s)
	if err != nil {
		return false
	}
	if env.Type != msgInit {
		s.send(errorFrame("expected 'init' message type"))
		s.close(websocket.CloseGoingAway, "expected 'init' message type")
		return false
	}

	var init initData
	if len(env.Data) > 0 {
		// A schema-invalid data object is a protocol violation like any
		// other malformed frame.
		if err := json.Unmarshal(env.Data, &init); err != nil {
			metrics.GatewayProtocolErrorsTotal.Inc()
			s.close(websocket.CloseGoingAway, "Invalid data format")
			return false
		}
	}

	authorization := init.Authorization
	if authorization == "" {
		authorization = header.Get("Authorization")
	}

	result := r.checker.Authorize(authorization)
	if result.Verified {
		sub, ok := result.Subject()
		if !ok {
			// A decodable credential without a subject claim is the one
			// fatal authentication outcome.
			slog.Error("'sub' claim not found in token payload")
			s.send(errorFrame("'sub' claim not found in token payload"))
			s.close(websocket.CloseNormalClosure, "'sub' claim not found in token payload")
			return false
		}
		s.principal = sub
	} else {
		if authorization != "" {
			slog.Warn("Token verification failed, logging in as guest")
		}
		s.principal = guestID()
		s.guest = true
	}

	s.send(welcomeFrame(s.guest))

	if init.Subscriptions != "" {
		if !r.joinSubscriptions(ctx, s, init.Subscriptions) {
			return false
		}
	}

	if s.guest {
		metrics.GatewayHandshakesTotal.WithLabelValues("guest").Inc()
	} else {
		metrics.GatewayHandshakesTotal.WithLabelValues("user").Inc()
	}
	return true
}

func (r *Room) joinSubscriptions(ctx context.Context, s *Session, raw string) bool {
	subIDs, err := parseSubscriptionIDs(raw)
	if err != nil {
		s.send(errorFrame(err.Error()))
		s.close(websocket.CloseNormalClosure, "subscription set does not exist")
		return false
	}

	for _, subID := range subIDs {
		if err := r.registry.Join(ctx, subID, s); err != nil {
			logging := slog.With("subscription_set_id", subID.String(), "principal", s.Principal())
			if apperrors.IsNotFound(err) {
				logging.Warn("Unknown subscription set in init message")
			} else {
				logging.Error("Failed to resolve subscription set", "error", err)
			}
			s.send(errorFrame("error processing subscriptions: " + err.Error()))
			s.close(websocket.CloseNormalClosure, "subscription resolution failed")
			return false
		}
		s.addSubscription(subID)
	}
	return true
}

func (r *Room) readLoop(ctx context.Context, s *Session) {
	for {
		env, err := r.readEnvelope(s)
		if err != nil {
			return
		}

		switch env.Type {
		case msgPing, msgHeartbeat:
			r.wheel.Schedule(s, r.cfg.HeartbeatTicks)
			s.send(pongFrame())

		case msgFollowAgent, msgUnfollowAgent:
			r.handleAgentFollow(ctx, s, env)

		default:
			if r.handler == nil {
				continue
			}
			if err := r.handler(ctx, s, env); err != nil {
				slog.Error("Custom handler failed", "type", env.Type, "principal", s.Principal(), "error", err)
			}
		}
	}
}

func (r *Room) handleAgentFollow(ctx context.Context, s *Session, env Envelope) {
	if r.follower == nil {
		return
	}

	var data agentData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AgentID == "" {
		s.send(errorFrame("missing agent identifier"))
		return
	}

	var err error
	if env.Type == msgFollowAgent {
		err = r.follower.Follow(ctx, s.Principal(), data.AgentID)
	} else {
		err = r.follower.Unfollow(ctx, s.Principal(), data.AgentID)
	}
	if err != nil {
		slog.Error("Agent follow update failed", "type", env.Type, "principal", s.Principal(), "agent_id", data.AgentID, "error", err)
		s.send(errorFrame("failed to update agent follow state"))
	}
}

// readEnvelope blocks on the next frame. Transport errors return silently
// (the caller tears down); malformed payloads close the connection with the
// protocol-error code before returning.
func (r *Room) readEnvelope(s *Session) (Envelope, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}

	env, err := parseEnvelope(data)
	if err != nil {
		metrics.GatewayProtocolErrorsTotal.Inc()
		var structured *apperrors.Error
		reason := "Invalid data format"
		if errors.As(err, &structured) && structured.Message == "invalid JSON" {
			reason = "Invalid JSON"
		}
		s.close(websocket.CloseGoingAway, reason)
		return Envelope{}, err
	}
	return env, nil
}

func guestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "guest_" + id.String()
}
