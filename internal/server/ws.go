package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PushHub is the websocket notification gateway. A player may hold several
// connections; every one of them receives each notification. Notifications for
// players with no open connection go to the offline gateway, if any.
type PushHub struct {
	mu      sync.RWMutex
	conns   map[string]map[*pushConn]struct{}
	offline notify.Gateway
	log     *zap.Logger
	now     func() time.Time
}

type pushConn struct {
	ws       *websocket.Conn
	playerID string
	binary   bool
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *pushConn) close() {
	c.once.Do(func() { close(c.done) })
}

func NewPushHub(offline notify.Gateway, log *zap.Logger) *PushHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &PushHub{
		conns:   make(map[string]map[*pushConn]struct{}),
		offline: offline,
		log:     log,
		now:     time.Now,
	}
}

// Send frames one notification for every connection of recipientID. Without
// a connection it hands off to the offline gateway, or returns
// notify.ErrNotConnected.
func (h *PushHub) Send(ctx context.Context, recipientID string, kind notify.Kind, payload map[string]any) error {
	h.mu.RLock()
	targets := make([]*pushConn, 0, len(h.conns[recipientID]))
	for c := range h.conns[recipientID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		if h.offline != nil {
			return h.offline.Send(ctx, recipientID, kind, payload)
		}
		return notify.ErrNotConnected
	}

	env, err := notify.Envelope(recipientID, kind, payload, h.now())
	if err != nil {
		return err
	}
	var binFrame, textFrame []byte
	queued := 0
	for _, c := range targets {
		var frame []byte
		if c.binary {
			if binFrame == nil {
				if binFrame, err = notify.EncodeBinary(env); err != nil {
					return fmt.Errorf("encode %s frame: %w", kind, err)
				}
			}
			frame = binFrame
		} else {
			if textFrame == nil {
				if textFrame, err = notify.EncodeJSON(env); err != nil {
					return fmt.Errorf("encode %s frame: %w", kind, err)
				}
			}
			frame = textFrame
		}
		select {
		case c.send <- frame:
			queued++
		case <-c.done:
		default:
			h.log.Warn("push buffer full, dropping frame",
				zap.String("player_id", recipientID),
				zap.String("kind", string(kind)))
		}
	}
	if queued == 0 {
		return fmt.Errorf("push to %s: no connection accepted the frame", recipientID)
	}
	return nil
}

// Connected reports how many open connections playerID holds.
func (h *PushHub) Connected(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[playerID])
}

// ServeWS upgrades the request and streams notifications to playerID until
// the client goes away. format=json selects text frames; the default is
// binary protobuf.
func (h *PushHub) ServeWS(w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("player_id", playerID), zap.Error(err))
		return
	}
	c := &pushConn{
		ws:       conn,
		playerID: playerID,
		binary:   r.URL.Query().Get("format") != "json",
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *PushHub) register(c *pushConn) {
	h.mu.Lock()
	set, ok := h.conns[c.playerID]
	if !ok {
		set = make(map[*pushConn]struct{})
		h.conns[c.playerID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("push connected", zap.String("player_id", c.playerID), zap.Bool("binary", c.binary))
}

func (h *PushHub) unregister(c *pushConn) {
	h.mu.Lock()
	if set, ok := h.conns[c.playerID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.playerID)
		}
	}
	h.mu.Unlock()
	c.close()
	h.log.Debug("push disconnected", zap.String("player_id", c.playerID))
}

// readPump only services control frames; clients have nothing to say here.
func (h *PushHub) readPump(c *pushConn) {
	defer c.close()
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *PushHub) writePump(c *pushConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	msgType := websocket.TextMessage
	if c.binary {
		msgType = websocket.BinaryMessage
	}
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(msgType, frame); err != nil {
				h.log.Debug("push write failed", zap.String("player_id", c.playerID), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Close drops every connection.
func (h *PushHub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.conns {
		for c := range set {
			c.close()
		}
	}
}
