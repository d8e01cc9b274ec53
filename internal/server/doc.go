// Package server exposes the HTTP surface of the gateway: the WebSocket
// endpoint, health probes, and Prometheus metrics. Connection admission is
// gated by global, per-IP, and rate limits before the upgrade happens.
package server
