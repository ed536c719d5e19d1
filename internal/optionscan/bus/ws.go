package bus

import (
	"net/http"
	"time"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades an HTTP connection to a WebSocket and streams that
// subscriber's ScanEvents as JSON frames, with a dedicated writePump and
// readPump per connection.
type WSHandler struct {
	bus    *Bus
	logger *common.Logger
}

func NewWSHandler(bus *Bus, logger *common.Logger) *WSHandler {
	return &WSHandler{bus: bus, logger: logger}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("progress websocket upgrade failed")
		return
	}

	events, unsubscribe := h.bus.Subscribe()
	go h.writePump(conn, events, unsubscribe)
	go h.readPump(conn, unsubscribe)
}

// writePump relays events to the socket as JSON and pings idle connections,
// matching JobWSClient.writePump's select-on-two-channels shape.
func (h *WSHandler) writePump(conn *websocket.Conn, events <-chan optionscan.ScanEvent, unsubscribe func()) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames only to detect the client closing the
// connection, matching JobWSClient.readPump.
func (h *WSHandler) readPump(conn *websocket.Conn, unsubscribe func()) {
	defer func() {
		unsubscribe()
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
