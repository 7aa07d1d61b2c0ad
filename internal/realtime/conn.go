package realtime

import (
	"context"
	"time"

	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = MaxCiphertextSize + 4096
)

// Conn liga um websocket ao protocolo
type Conn struct {
	ws      *websocket.Conn
	peer    *Peer
	proto   *Protocol
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewConn(ws *websocket.Conn, peer *Peer, proto *Protocol, log *logger.Logger, m *metrics.Metrics) *Conn {
	if log == nil {
		log = logger.Nop()
	}
	return &Conn{ws: ws, peer: peer, proto: proto, log: log.With("peer", peer.ID), metrics: m}
}

// Serve bloqueia até a conexão terminar. Ao sair o peer deixa todos os grupos.
func (c *Conn) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.metrics.ConnOpened()
	defer func() {
		cancel()
		c.proto.Disconnect(c.peer)
		c.ws.Close()
		c.metrics.ConnClosed()
		c.log.Debugw("conexão encerrada")
	}()

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Conn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Infow("leitura do websocket falhou", "error", err)
			}
			return
		}
		if c.peer.Closed() {
			return
		}
		c.proto.Handle(ctx, c.peer, data)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// desbloqueia o readPump quando o peer é derrubado por lentidão
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.peer.Out():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Infow("escrita no websocket falhou", "error", err)
				c.peer.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.peer.Close()
				return
			}
		case <-c.peer.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection closed"))
			return
		case <-ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
