package api

import (
	"net/http"

	"zeroep-backend/internal/realtime"
)

// checkOrigin aceita clientes sem Origin (CLI, testes) e navegadores da allow-list
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// handleWebSocket (GET /ws). A credencial do handshake é opcional; cada
// evento pode trazer a sua.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade já respondeu ao cliente
		h.log.Infow("upgrade do websocket recusado", "error", err)
		return
	}

	peer := realtime.NewPeer(credentialFrom(r), 0)
	h.log.Debugw("conexão websocket aberta", "peer", peer.ID, "remote", r.RemoteAddr)
	realtime.NewConn(ws, peer, h.protocol, h.log, h.metrics).Serve(h.baseCtx)
}
