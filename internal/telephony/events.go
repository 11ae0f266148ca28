// Package telephony speaks the Twilio Media Streams protocol and serves the
// voice webhooks that start a stream.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedEvent is returned when a media stream message is missing
// required fields or is not valid JSON
var ErrMalformedEvent = errors.New("telephony: malformed event")

// Event is a decoded inbound media stream message
type Event interface {
	Name() string
}

// ConnectedEvent is the first message on a new stream
type ConnectedEvent struct {
	Protocol string
	Version  string
}

// StartEvent opens (or reopens) a stream
type StartEvent struct {
	StreamSid        string
	AccountSid       string
	CallSid          string
	Tracks           []string
	CustomParameters map[string]string
	Encoding         string
	SampleRate       int
}

// MediaEvent carries one caller audio frame
type MediaEvent struct {
	Track       string
	Chunk       string
	TimestampMs int64
	Payload     string // base64 μ-law, forwarded unchanged
}

// MarkEvent acknowledges playback of a mark we sent
type MarkEvent struct {
	MarkName string
}

// StopEvent ends the stream
type StopEvent struct {
	CallSid string
}

// UnknownEvent is any other event
type UnknownEvent struct {
	EventName string
}

func (ConnectedEvent) Name() string { return "connected" }
func (StartEvent) Name() string     { return "start" }
func (MediaEvent) Name() string     { return "media" }
func (MarkEvent) Name() string      { return "mark" }
func (StopEvent) Name() string      { return "stop" }
func (e UnknownEvent) Name() string { return e.EventName }

type wireMessage struct {
	Event     string     `json:"event"`
	StreamSid string     `json:"streamSid"`
	Protocol  string     `json:"protocol"`
	Version   string     `json:"version"`
	Start     *wireStart `json:"start"`
	Media     *wireMedia `json:"media"`
	Mark      *wireMark  `json:"mark"`
	Stop      *wireStop  `json:"stop"`
}

type wireStart struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
	} `json:"mediaFormat"`
}

// Timestamps arrive as strings from Twilio; numbers are accepted too.
type wireMedia struct {
	Track     string       `json:"track"`
	Chunk     string       `json:"chunk"`
	Timestamp *json.Number `json:"timestamp"`
	Payload   *string      `json:"payload"`
}

type wireMark struct {
	Name string `json:"name"`
}

type wireStop struct {
	CallSid string `json:"callSid"`
}

// DecodeEvent parses one inbound media stream message
func DecodeEvent(data []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch msg.Event {
	case "":
		return nil, fmt.Errorf("%w: missing event", ErrMalformedEvent)

	case "connected":
		return ConnectedEvent{Protocol: msg.Protocol, Version: msg.Version}, nil

	case "start":
		if msg.Start == nil {
			return nil, fmt.Errorf("%w: start without payload", ErrMalformedEvent)
		}
		ev := StartEvent{
			StreamSid:        msg.Start.StreamSid,
			AccountSid:       msg.Start.AccountSid,
			CallSid:          msg.Start.CallSid,
			Tracks:           msg.Start.Tracks,
			CustomParameters: msg.Start.CustomParameters,
			Encoding:         msg.Start.MediaFormat.Encoding,
			SampleRate:       msg.Start.MediaFormat.SampleRate,
		}
		if ev.StreamSid == "" {
			ev.StreamSid = msg.StreamSid
		}
		if ev.StreamSid == "" {
			return nil, fmt.Errorf("%w: start without streamSid", ErrMalformedEvent)
		}
		return ev, nil

	case "media":
		if msg.Media == nil || msg.Media.Payload == nil || msg.Media.Timestamp == nil {
			return nil, fmt.Errorf("%w: media without payload or timestamp", ErrMalformedEvent)
		}
		ts, err := parseTimestamp(*msg.Media.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return MediaEvent{
			Track:       msg.Media.Track,
			Chunk:       msg.Media.Chunk,
			TimestampMs: ts,
			Payload:     *msg.Media.Payload,
		}, nil

	case "mark":
		ev := MarkEvent{}
		if msg.Mark != nil {
			ev.MarkName = msg.Mark.Name
		}
		return ev, nil

	case "stop":
		ev := StopEvent{}
		if msg.Stop != nil {
			ev.CallSid = msg.Stop.CallSid
		}
		return ev, nil
	}

	return UnknownEvent{EventName: msg.Event}, nil
}

func parseTimestamp(n json.Number) (int64, error) {
	ts, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is not an integer", n.String())
	}
	return ts, nil
}

// MediaMessage plays audio to the caller
type MediaMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

// MediaPayload is the body of an outbound media message
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MarkMessage asks Twilio to acknowledge when playback reaches this point
type MarkMessage struct {
	Event     string   `json:"event"`
	StreamSid string   `json:"streamSid"`
	Mark      MarkBody `json:"mark"`
}

// MarkBody is the body of an outbound mark message
type MarkBody struct {
	Name string `json:"name"`
}

// ClearMessage discards audio buffered for playback
type ClearMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// NewMediaMessage builds a media message
func NewMediaMessage(streamSid, payload string) MediaMessage {
	return MediaMessage{Event: "media", StreamSid: streamSid, Media: MediaPayload{Payload: payload}}
}

// NewMarkMessage builds a mark message
func NewMarkMessage(streamSid, name string) MarkMessage {
	return MarkMessage{Event: "mark", StreamSid: streamSid, Mark: MarkBody{Name: name}}
}

// NewClearMessage builds a clear message
func NewClearMessage(streamSid string) ClearMessage {
	return ClearMessage{Event: "clear", StreamSid: streamSid}
}
