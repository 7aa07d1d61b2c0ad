package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity é um endereço de carteira. Só compare valores normalizados.
type Identity string

// NormalizeIdentity remove espaços e passa para minúsculas
func NormalizeIdentity(s string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(s)))
}

func (i Identity) String() string { return string(i) }

// User é o registro por identidade
type User struct {
	Identity  Identity  `json:"identity"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChannelKind string

const (
	KindDirect   ChannelKind = "direct"
	KindGroup    ChannelKind = "group"
	KindImported ChannelKind = "imported"
)

func (k ChannelKind) Valid() bool {
	switch k {
	case KindDirect, KindGroup, KindImported:
		return true
	}
	return false
}

// Participant é um membro do canal com a metade pública do seu par de
// chaves. KeyBackup é selado no cliente e opaco aqui.
type Participant struct {
	Identity  Identity  `json:"identity"`
	JoinedAt  time.Time `json:"joinedAt"`
	PublicKey []byte    `json:"publicKey,omitempty"`
	KeyBackup []byte    `json:"keyBackup,omitempty"`
	IsCreator bool      `json:"isCreator"`
}

// Message é uma entrada imutável do log. Ciphertext é opaco.
type Message struct {
	ID         uuid.UUID `json:"id"`
	ChannelID  uuid.UUID `json:"channelId"`
	Seq        int64     `json:"seq"`
	Sender     Identity  `json:"sender"`
	Ciphertext string    `json:"ciphertext"`
	SentAt     time.Time `json:"sentAt"`
}

type Channel struct {
	ID           uuid.UUID              `json:"id"`
	Kind         ChannelKind            `json:"kind"`
	Name         string                 `json:"name,omitempty"`
	Provenance   string                 `json:"provenance,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	Participants []Participant          `json:"participants"`
	Messages     []Message              `json:"messages"`
	ReadMarks    map[Identity]time.Time `json:"readMarks"`
}

func (c *Channel) HasParticipant(id Identity) bool {
	return c.Participant(id) != nil
}

func (c *Channel) Participant(id Identity) *Participant {
	for i := range c.Participants {
		if c.Participants[i].Identity == id {
			return &c.Participants[i]
		}
	}
	return nil
}

// LastMessage devolve a mensagem mais nova, ou nil
func (c *Channel) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	m := c.Messages[len(c.Messages)-1]
	return &m
}

// LastActivity é a hora da última mensagem, ou da criação
func (c *Channel) LastActivity() time.Time {
	if m := c.LastMessage(); m != nil {
		return m.SentAt
	}
	return c.CreatedAt
}

// Title é o nome que viewer vê: a outra parte num canal direto, o nome nos demais
func (c *Channel) Title(viewer Identity) string {
	if c.Kind == KindDirect {
		for _, p := range c.Participants {
			if p.Identity != viewer {
				return p.Identity.String()
			}
		}
	}
	return c.Name
}

// Unread conta mensagens de outros depois da marca de leitura de viewer
func (c *Channel) Unread(viewer Identity) int {
	mark := c.ReadMarks[viewer]
	n := 0
	for _, m := range c.Messages {
		if m.Sender != viewer && m.SentAt.After(mark) {
			n++
		}
	}
	return n
}

// Valid confere as invariantes estruturais de um canal carregado
func (c *Channel) Valid() bool {
	if !c.Kind.Valid() {
		return false
	}
	if c.Kind == KindDirect && len(c.Participants) != 2 {
		return false
	}
	return len(c.Participants) > 0
}

func (c *Channel) Summary(viewer Identity) ChannelSummary {
	return ChannelSummary{
		ID:           c.ID,
		Kind:         c.Kind,
		Title:        c.Title(viewer),
		LastMessage:  c.LastMessage(),
		LastActivity: c.LastActivity(),
		Unread:       c.Unread(viewer),
	}
}

type ChannelSummary struct {
	ID           uuid.UUID   `json:"id"`
	Kind         ChannelKind `json:"kind"`
	Title        string      `json:"title"`
	LastMessage  *Message    `json:"lastMessage"`
	LastActivity time.Time   `json:"lastActivity"`
	Unread       int         `json:"unread"`
}

// SortSummaries ordena pela atividade mais recente primeiro
func SortSummaries(s []ChannelSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].LastActivity.After(s[j].LastActivity)
	})
}

// DirectKey é a chave canônica de um par não ordenado
func DirectKey(a, b Identity) string {
	if b < a {
		a, b = b, a
	}
	return string(a) + "|" + string(b)
}
