// Package gateway implements the real-time fan-out core: WebSocket sessions
// grouped into subscription sets, a fixed-size timeout wheel for idle
// eviction, and a broadcast engine that routes tagged intelligence payloads
// to every connection subscribed to a matching set.
//
// Shared state is confined to two explicitly locked structures: the
// Registry (tag and membership indexes under one RWMutex) and the
// TimeoutWheel (per-slot mutexes, ascending-index acquisition when a
// reschedule touches two slots). No lock is held across I/O.
package gateway
