package realtime

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSendBuffer = 256

// Peer é o lado do servidor de uma conexão viva. O canal de saída nunca é
// fechado; o fim da conexão é sinalizado por Done.
type Peer struct {
	ID         uuid.UUID
	credential string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewPeer cria um peer com a credencial apresentada no handshake (pode ser vazia)
func NewPeer(credential string, buffer int) *Peer {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Peer{
		ID:         uuid.New(),
		credential: credential,
		out:        make(chan []byte, buffer),
		done:       make(chan struct{}),
	}
}

// Deliver enfileira sem bloquear. Fila cheia derruba o peer e retorna false.
func (p *Peer) Deliver(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.out <- frame:
		return true
	default:
		p.Close()
		return false
	}
}

func (p *Peer) Out() <-chan []byte { return p.out }

func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// credentialFor escolhe a credencial do evento, ou a do handshake
func (p *Peer) credentialFor(eventCredential string) string {
	if eventCredential != "" {
		return eventCredential
	}
	return p.credential
}
