package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event names carried in the "event" field of every frame
const (
	EventSendMessage    = "sendMessage"
	EventPing           = "ping"
	EventGetOnlineUsers = "getOnlineUsers"
	EventReceiveMessage = "receiveMessage"
	EventPong           = "pong"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

var validate = validator.New()

// ClientMessage is a frame received from a client
type ClientMessage struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a frame sent to a client
type ServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// SendMessagePayload is the data of a sendMessage event
type SendMessagePayload struct {
	ReceiverID string          `json:"receiverId" validate:"required"`
	Message    json.RawMessage `json:"message" validate:"required"`
}

// ReceiveMessagePayload is the data of a receiveMessage event
type ReceiveMessagePayload struct {
	Message  json.RawMessage `json:"message"`
	SenderID string          `json:"senderId"`
}

// DecodeClientMessage parses and validates a raw client frame
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &msg, nil
}

// DecodeSendMessage extracts the sendMessage payload of a client frame.
// A message that is absent or JSON null counts as missing.
func DecodeSendMessage(msg *ClientMessage) (SendMessagePayload, error) {
	var payload SendMessagePayload
	if len(msg.Data) == 0 {
		return payload, fmt.Errorf("%w: sendMessage without data", ErrMalformedEvent)
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if bytes.Equal(bytes.TrimSpace(payload.Message), []byte("null")) {
		payload.Message = nil
	}
	if err := validate.Struct(&payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return payload, nil
}

// EncodeServerMessage renders an outbound frame
func EncodeServerMessage(event string, data interface{}) ([]byte, error) {
	return json.Marshal(ServerMessage{Event: event, Data: data})
}
