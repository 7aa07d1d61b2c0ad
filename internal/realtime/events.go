package realtime

import (
	"encoding/json"
	"time"

	"zeroep-backend/internal/models"
)

// Nomes de eventos, nos dois sentidos
const (
	EventJoinRoom           = "join-room"
	EventJoinRoomResponse   = "join-room-response"
	EventSendMessage        = "send-message"
	EventMessageResponse    = "message-response"
	EventUpdateRead         = "update-read"
	EventReadData           = "read-data"
	EventUpdateReadResponse = "update-read-response"
	EventLeaveRoom          = "leave-room"
	EventLeaveRoomResponse  = "leave-room-response"
	EventError              = "error"
)

// MaxCiphertextSize limita o envelope opaco aceito em send-message
const MaxCiphertextSize = 64 << 10

// Envelope é o frame de entrada: {"event": ..., "data": ...}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Frame é o frame de saída
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type RoomRequest struct {
	ChannelID  string `json:"channelId"`
	Credential string `json:"credential,omitempty"`
}

type SendRequest struct {
	ChannelID  string `json:"channelId"`
	Credential string `json:"credential,omitempty"`
	Ciphertext string `json:"ciphertext"`
}

type JoinResponse struct {
	Success   bool   `json:"success"`
	ChannelID string `json:"channelId"`
	Message   string `json:"message,omitempty"`
}

// MessageResponse é o broadcast de uma mensagem gravada, ou a falha devolvida só ao remetente
type MessageResponse struct {
	Success    bool            `json:"success"`
	ChannelID  string          `json:"channelId"`
	ID         string          `json:"id,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Ciphertext string          `json:"ciphertext,omitempty"`
	Sender     models.Identity `json:"sender,omitempty"`
	SentAt     *time.Time      `json:"sentAt,omitempty"`
	Message    string          `json:"message,omitempty"`
}

type ReadData struct {
	Identity  models.Identity `json:"identity"`
	ChannelID string          `json:"channelId"`
	At        time.Time       `json:"at"`
}

// Result serve para update-read-response e leave-room-response
type Result struct {
	Success   bool   `json:"success"`
	ChannelID string `json:"channelId"`
	Message   string `json:"message,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

func messageResponse(m *models.Message) MessageResponse {
	sentAt := m.SentAt
	return MessageResponse{
		Success:    true,
		ChannelID:  m.ChannelID.String(),
		ID:         m.ID.String(),
		Seq:        m.Seq,
		Ciphertext: m.Ciphertext,
		Sender:     m.Sender,
		SentAt:     &sentAt,
	}
}
