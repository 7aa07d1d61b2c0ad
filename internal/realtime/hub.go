package realtime

import (
	"sync"

	"zeroep-backend/internal/metrics"

	"github.com/google/uuid"
)

// Hub mantém os grupos de broadcast (canal -> peers) e o índice reverso
// (peer -> canais) usado no disconnect.
type Hub struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[*Peer]struct{}
	joined map[*Peer]map[uuid.UUID]struct{}

	seqMu sync.Mutex
	seq   map[uuid.UUID]*seqLock

	metrics *metrics.Metrics
}

type seqLock struct {
	mu   sync.Mutex
	refs int
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		groups:  make(map[uuid.UUID]map[*Peer]struct{}),
		joined:  make(map[*Peer]map[uuid.UUID]struct{}),
		seq:     make(map[uuid.UUID]*seqLock),
		metrics: m,
	}
}

// Sequence serializa publicações de um canal. Quem segura o lock grava e
// faz o broadcast antes do próximo, então todo assinante vê a ordem do log.
// Canais diferentes não disputam o mesmo lock.
func (h *Hub) Sequence(channelID uuid.UUID) (unlock func()) {
	h.seqMu.Lock()
	l, ok := h.seq[channelID]
	if !ok {
		l = &seqLock{}
		h.seq[channelID] = l
	}
	l.refs++
	h.seqMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.seqMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.seq, channelID)
		}
		h.seqMu.Unlock()
	}
}

func (h *Hub) Subscribe(channelID uuid.UUID, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[channelID]
	if !ok {
		g = make(map[*Peer]struct{})
		h.groups[channelID] = g
	}
	g[p] = struct{}{}

	j, ok := h.joined[p]
	if !ok {
		j = make(map[uuid.UUID]struct{})
		h.joined[p] = j
	}
	j[channelID] = struct{}{}
}

func (h *Hub) Unsubscribe(channelID uuid.UUID, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channelID, p)
}

// Drop tira o peer de todos os grupos e devolve quantos eram
func (h *Hub) Drop(p *Peer) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.joined[p])
	for channelID := range h.joined[p] {
		h.removeLocked(channelID, p)
	}
	delete(h.joined, p)
	return n
}

func (h *Hub) removeLocked(channelID uuid.UUID, p *Peer) {
	if g, ok := h.groups[channelID]; ok {
		delete(g, p)
		if len(g) == 0 {
			delete(h.groups, channelID)
		}
	}
	if j, ok := h.joined[p]; ok {
		delete(j, channelID)
		if len(j) == 0 {
			delete(h.joined, p)
		}
	}
}

func (h *Hub) IsSubscribed(channelID uuid.UUID, p *Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[channelID][p]
	return ok
}

// Subscribers devolve uma cópia do grupo
func (h *Hub) Subscribers(channelID uuid.UUID) []*Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Peer, 0, len(h.groups[channelID]))
	for p := range h.groups[channelID] {
		out = append(out, p)
	}
	return out
}

// Broadcast entrega o frame a todo o grupo. Peers que não acompanham são
// derrubados; o resto do grupo não espera por eles.
func (h *Hub) Broadcast(channelID uuid.UUID, frame []byte) int {
	delivered := 0
	for _, p := range h.Subscribers(channelID) {
		wasOpen := !p.Closed()
		if p.Deliver(frame) {
			delivered++
			continue
		}
		if h.Drop(p) > 0 && wasOpen {
			h.metrics.SlowConsumer()
		}
	}
	return delivered
}
