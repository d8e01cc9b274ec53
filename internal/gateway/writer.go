package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline  = 5 * time.Second
	sendBufferSize = 16
)

// connWriter serializes all writes to one WebSocket connection through a
// single goroutine, so broadcast fan-out and protocol replies never write
// concurrently. The wheel owns liveness; the writer has no ping loop.
type connWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newConnWriter(connection *websocket.Conn, clock clockwork.Clock) *connWriter {
	cw := &connWriter{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, sendBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *connWriter) run() {
	defer cw.wg.Done()
	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.doneChannel:
			// Flush frames queued before teardown (an error frame explaining
			// the close, typically) so they beat the close frame out.
			for {
				select {
				case msg := <-cw.sendChannel:
					cw.updateWriteDeadline()
					if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// trySend queues a message without blocking. Returns false when the buffer
// is full — the caller treats that as a dropped best-effort delivery.
func (cw *connWriter) trySend(data []byte) bool {
	select {
	case cw.sendChannel <- data:
		return true
	default:
		return false
	}
}

// stopWithClose stops the writer goroutine, sends a close frame with the
// given code and reason, and closes the underlying connection. Subsequent
// calls are no-ops.
func (cw *connWriter) stopWithClose(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		// The run goroutine must exit before the close frame is written to
		// avoid concurrent writes on the connection.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}

func (cw *connWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}
