package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		event   string
		wantErr bool
	}{
		{"send message", `{"event":"sendMessage","data":{"receiverId":"bob","message":"hi"}}`, EventSendMessage, false},
		{"ping without data", `{"event":"ping"}`, EventPing, false},
		{"unknown event still decodes", `{"event":"typing","data":{}}`, "typing", false},
		{"missing event", `{"data":{}}`, "", true},
		{"not json", `hello`, "", true},
		{"array", `[1,2]`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeClientMessage([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, msg.Event)
		})
	}
}

func TestDecodeSendMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		receiver string
		message  string
		wantErr  bool
	}{
		{"string message", `{"receiverId":"bob","message":"hi"}`, "bob", `"hi"`, false},
		{"object message", `{"receiverId":"bob","message":{"text":"hi","at":1}}`, "bob", `{"text":"hi","at":1}`, false},
		{"empty string message", `{"receiverId":"bob","message":""}`, "bob", `""`, false},
		{"missing receiver", `{"message":"hi"}`, "", "", true},
		{"empty receiver", `{"receiverId":"","message":"hi"}`, "", "", true},
		{"missing message", `{"receiverId":"bob"}`, "", "", true},
		{"null message", `{"receiverId":"bob","message":null}`, "", "", true},
		{"receiver not a string", `{"receiverId":42,"message":"hi"}`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := DecodeSendMessage(&ClientMessage{Event: EventSendMessage, Data: json.RawMessage(tt.data)})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.receiver, payload.ReceiverID)
			assert.JSONEq(t, tt.message, string(payload.Message))
		})
	}
}

func TestDecodeSendMessage_NoData(t *testing.T) {
	_, err := DecodeSendMessage(&ClientMessage{Event: EventSendMessage})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestEncodeServerMessage(t *testing.T) {
	frame, err := EncodeServerMessage(EventReceiveMessage, ReceiveMessagePayload{
		Message:  json.RawMessage(`{"text":"hi"}`),
		SenderID: "alice",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"receiveMessage","data":{"message":{"text":"hi"},"senderId":"alice"}}`, string(frame))

	frame, err = EncodeServerMessage(EventGetOnlineUsers, []string{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"getOnlineUsers","data":[]}`, string(frame))

	frame, err = EncodeServerMessage(EventPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong"}`, string(frame))
}
