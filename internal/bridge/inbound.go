package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lexiqai/realtime-bridge/internal/audio"
	"github.com/lexiqai/realtime-bridge/internal/realtime"
	"github.com/lexiqai/realtime-bridge/internal/telephony"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// runInbound relays caller audio to the engine until the stream stops
func (b *Bridge) runInbound(ctx context.Context) error {
	defer func() {
		if b.engine.Open() {
			b.engine.Close()
		}
	}()

	for {
		data, err := b.telephony.ReadMessage()
		if err != nil {
			if err := readErr(ctx, "telephony", err); err != nil {
				b.metrics.RecordError("read", "telephony")
				return err
			}
			b.logger.Info().Msg("Client disconnected")
			return nil
		}

		ev, err := telephony.DecodeEvent(data)
		if err != nil {
			b.metrics.RecordError("malformed_event", "telephony")
			return err
		}

		done, err := b.handleTelephonyEvent(ev)
		if err != nil || done {
			return err
		}
	}
}

// handleTelephonyEvent applies one inbound event. done is true on stop.
func (b *Bridge) handleTelephonyEvent(ev telephony.Event) (done bool, err error) {
	switch e := ev.(type) {
	case telephony.StartEvent:
		b.session.Start(e.StreamSid)
		b.logger.Info().
			Str("stream_sid", e.StreamSid).
			Str("call_sid", e.CallSid).
			Str("encoding", e.Encoding).
			Int("sample_rate", e.SampleRate).
			Msg("Incoming stream has started")

	case telephony.MediaEvent:
		return false, b.forwardCallerAudio(e)

	case telephony.MarkEvent:
		result := b.session.AckMark(e.MarkName)
		b.metrics.RecordMark(result.String())
		if result != MarkAcked {
			b.logger.Debug().Str("mark", e.MarkName).Str("result", result.String()).Msg("Mark ignored")
		}

	case telephony.StopEvent:
		b.logger.Info().Str("call_sid", e.CallSid).Msg("Stream stopped")
		return true, nil

	default:
		b.logger.Debug().Str("event", ev.Name()).Msg("Ignoring telephony event")
	}
	return false, nil
}

func (b *Bridge) forwardCallerAudio(e telephony.MediaEvent) error {
	b.session.ObserveMedia(e.TimestampMs)

	frame, err := base64.StdEncoding.DecodeString(e.Payload)
	if err != nil {
		b.metrics.RecordError("malformed_event", "telephony")
		return fmt.Errorf("%w: media payload: %v", telephony.ErrMalformedEvent, err)
	}
	b.metrics.RecordAudioFrame("in", len(frame))
	b.metrics.RecordCallerLevel(audio.Level(frame))

	if !b.engine.Open() {
		return nil
	}
	if err := b.engine.WriteJSON(realtime.NewAudioAppend(e.Payload)); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return nil
		}
		b.metrics.RecordError("write", "realtime")
		return fmt.Errorf("engine append: %w", err)
	}
	return nil
}
