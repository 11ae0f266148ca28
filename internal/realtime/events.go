// Package realtime speaks the OpenAI Realtime WebSocket protocol.
package realtime

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent is returned when an engine message cannot be decoded
var ErrMalformedEvent = errors.New("realtime: malformed event")

// Server event types the bridge acts on
const (
	EventAudioDelta    = "response.audio.delta"
	EventSpeechStarted = "input_audio_buffer.speech_started"
	EventError         = "error"
)

// TurnDetection selects the engine's voice activity detection mode
type TurnDetection struct {
	Type string `json:"type"`
}

// SessionSettings is the body of a session.update message
type SessionSettings struct {
	TurnDetection     TurnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

// SessionUpdate configures the engine session
type SessionUpdate struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

// ContentPart is one piece of a conversation item
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Item is a conversation item
type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ConversationItemCreate appends an item to the engine conversation
type ConversationItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// ResponseCreate asks the engine to produce a response
type ResponseCreate struct {
	Type string `json:"type"`
}

// InputAudioAppend forwards one caller audio frame
type InputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ConversationItemTruncate tells the engine how much of an item the caller heard
type ConversationItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

// NewSessionUpdate builds the session.update message for settings
func NewSessionUpdate(settings SessionSettings) SessionUpdate {
	return SessionUpdate{Type: "session.update", Session: settings}
}

// NewUserMessage builds a user text item
func NewUserMessage(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: "conversation.item.create",
		Item: Item{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewResponseCreate builds a response.create message
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{Type: "response.create"}
}

// NewAudioAppend wraps a base64 μ-law payload unchanged
func NewAudioAppend(payload string) InputAudioAppend {
	return InputAudioAppend{Type: "input_audio_buffer.append", Audio: payload}
}

// NewTruncate builds a truncate for the first content part of itemID
func NewTruncate(itemID string, audioEndMs int64) ConversationItemTruncate {
	return ConversationItemTruncate{
		Type:         "conversation.item.truncate",
		ItemID:       itemID,
		ContentIndex: 0,
		AudioEndMs:   audioEndMs,
	}
}

// ServerEvent is a decoded engine event
type ServerEvent interface {
	EventType() string
	RawJSON() []byte
}

// Envelope carries the type and the undecoded message of every server event
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

func (e Envelope) EventType() string { return e.Type }
func (e Envelope) RawJSON() []byte   { return e.Raw }

// AudioDeltaEvent is a chunk of synthesized audio
type AudioDeltaEvent struct {
	Envelope
	ResponseID string
	ItemID     string
	Audio      []byte
}

// SpeechStartedEvent signals the engine detected caller speech
type SpeechStartedEvent struct {
	Envelope
	AudioStartMs int64
	ItemID       string
}

// ErrorEvent is an engine-reported error
type ErrorEvent struct {
	Envelope
	Code    string
	Message string
	Kind    string
}

// GenericEvent is any event the bridge only logs
type GenericEvent struct {
	Envelope
}

type wireServerEvent struct {
	Type         string  `json:"type"`
	ResponseID   string  `json:"response_id"`
	ItemID       string  `json:"item_id"`
	Delta        *string `json:"delta"`
	AudioStartMs int64   `json:"audio_start_ms"`
	Error        *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeServerEvent parses one engine message. An audio delta without a
// delta field is returned as a GenericEvent.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var wire wireServerEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	env := Envelope{Type: wire.Type, Raw: json.RawMessage(data)}

	switch wire.Type {
	case EventAudioDelta:
		if wire.Delta == nil {
			return GenericEvent{Envelope: env}, nil
		}
		audio, err := base64.StdEncoding.DecodeString(*wire.Delta)
		if err != nil {
			return nil, fmt.Errorf("%w: audio delta: %v", ErrMalformedEvent, err)
		}
		return AudioDeltaEvent{
			Envelope:   env,
			ResponseID: wire.ResponseID,
			ItemID:     wire.ItemID,
			Audio:      audio,
		}, nil

	case EventSpeechStarted:
		return SpeechStartedEvent{
			Envelope:     env,
			AudioStartMs: wire.AudioStartMs,
			ItemID:       wire.ItemID,
		}, nil

	case EventError:
		ev := ErrorEvent{Envelope: env}
		if wire.Error != nil {
			ev.Code = wire.Error.Code
			ev.Message = wire.Error.Message
			ev.Kind = wire.Error.Type
		}
		return ev, nil
	}

	return GenericEvent{Envelope: env}, nil
}
