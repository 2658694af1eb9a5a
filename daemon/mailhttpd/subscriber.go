package mailhttpd

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ExPixel/mercury/eventbus"
	"github.com/ExPixel/mercury/lalog"
)

const heartbeatInterval = 30 * time.Second

var pingPayload = []byte{0xEF, 0xBE, 0xAD, 0xDE}

type wsMessageFromClient struct {
	Type string `json:"type"`
}

type wsMessageFromServer struct {
	Type string `json:"type"`
}

const (
	clientListenForNewMail = "ListenForNewMail"
	clientHeartbeat        = "Heartbeat"
	serverNewMailAvailable = "NewMailAvailable"
)

// socketState tracks what this particular connection has opted into and
// whether it should be torn down.
type socketState struct {
	listenForNewMail bool
	closed           bool
}

// serveSubscriber drives one upgraded websocket connection until it closes.
// It subscribes to the bus for the lifetime of the connection and forwards
// NewMailAvailable notifications only once the client has asked for them.
//
// The heartbeat timer is reset solely when this goroutine sends its own
// outbound frame (a NewMailAvailable notice or a ping), not on arbitrary
// inbound client activity; a client that only sends heartbeats without
// ever producing outbound traffic from us will still be pinged on
// schedule.
func serveSubscriber(conn *websocket.Conn, bus *eventbus.Bus, logger *lalog.Logger, gauge func(delta int)) {
	defer conn.Close()

	if gauge != nil {
		gauge(1)
		defer gauge(-1)
	}

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	inbound := make(chan wsMessageFromClient)
	inboundErr := make(chan error, 1)
	go readLoop(conn, inbound, inboundErr)

	var state socketState
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for !state.closed {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			switch msg.Type {
			case clientListenForNewMail:
				state.listenForNewMail = true
			case clientHeartbeat:
			}

		case err := <-inboundErr:
			if err != nil {
				logger.MaybeMinorError(err)
			}
			return

		case <-sub.Wake():
			ids, lagged := sub.Drain()
			if state.listenForNewMail {
				for range ids {
					if !sendJSON(conn, wsMessageFromServer{Type: serverNewMailAvailable}) {
						return
					}
					heartbeat.Reset(heartbeatInterval)
				}
			}
			if lagged {
				// This subscriber's backlog overflowed before every ID
				// could be delivered; its view of what was published is no
				// longer reliable. Per the lag policy, disconnect rather
				// than resynchronise in place - the client reconnects and
				// replays via the list API.
				logger.Info(conn.RemoteAddr(), nil, "subscriber lagged, disconnecting")
				return
			}

		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.PingMessage, pingPayload); err != nil {
				logger.MaybeMinorError(err)
				return
			}
			heartbeat.Reset(heartbeatInterval)
		}
	}
}

func sendJSON(conn *websocket.Conn, v interface{}) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, b) == nil
}

// readLoop translates inbound websocket frames into wsMessageFromClient
// values. It exits (closing inbound) once the connection errors or closes,
// which includes a received close frame.
func readLoop(conn *websocket.Conn, inbound chan<- wsMessageFromClient, errs chan<- error) {
	defer close(inbound)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg wsMessageFromClient
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		inbound <- msg
	}
}
