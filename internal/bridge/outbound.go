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

// runOutbound relays engine events to the caller until the engine socket closes
func (b *Bridge) runOutbound(ctx context.Context) error {
	for {
		data, err := b.engine.ReadMessage()
		if err != nil {
			if err := readErr(ctx, "realtime", err); err != nil {
				b.metrics.RecordError("read", "realtime")
				return err
			}
			return nil
		}

		ev, err := realtime.DecodeServerEvent(data)
		if err != nil {
			b.metrics.RecordError("malformed_event", "realtime")
			return err
		}

		if err := b.handleEngineEvent(ev); err != nil {
			return err
		}
	}
}

func (b *Bridge) handleEngineEvent(ev realtime.ServerEvent) error {
	b.metrics.RecordEngineEvent(ev.EventType())
	if _, ok := b.logTypes[ev.EventType()]; ok {
		b.logger.Info().Str("type", ev.EventType()).RawJSON("event", ev.RawJSON()).Msg("Received event")
	}

	switch e := ev.(type) {
	case realtime.AudioDeltaEvent:
		return b.forwardAssistantAudio(e)

	case realtime.SpeechStartedEvent:
		b.logger.Info().Int64("audio_start_ms", e.AudioStartMs).Msg("Speech started detected")
		if b.session.HasItem() {
			return b.interrupt()
		}
		b.metrics.RecordInterruption("ignored", 0)

	case realtime.ErrorEvent:
		b.metrics.RecordError("engine_error", "realtime")
		b.logger.Error().
			Str("code", e.Code).
			Str("kind", e.Kind).
			Str("message", e.Message).
			Msg("Realtime API error")
	}
	return nil
}

func (b *Bridge) forwardAssistantAudio(e realtime.AudioDeltaEvent) error {
	p := b.session.RecordPlayback(e.ItemID)
	if p.Started && b.showTiming {
		b.logger.Info().Int64("start_ms", p.StartMs).Msg("Setting start timestamp for new response")
	}

	payload := base64.StdEncoding.EncodeToString(e.Audio)
	if err := b.telephony.WriteJSON(telephony.NewMediaMessage(p.StreamSid, payload)); err != nil {
		return b.telephonyWriteErr("media", err)
	}
	b.metrics.RecordAudioFrame("out", len(e.Audio))
	b.metrics.RecordPlayout(audio.MulawDuration(e.Audio))

	if p.MarkName == "" {
		return nil
	}
	if p.DroppedMark {
		b.metrics.RecordMark("dropped")
		b.logger.Warn().Msg("Pending mark limit reached, dropping oldest mark")
	}
	if err := b.telephony.WriteJSON(telephony.NewMarkMessage(p.StreamSid, p.MarkName)); err != nil {
		return b.telephonyWriteErr("mark", err)
	}
	b.metrics.RecordMark("sent")
	return nil
}

// telephonyWriteErr ignores writes racing a hangup; the read side ends the relay.
func (b *Bridge) telephonyWriteErr(what string, err error) error {
	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	b.metrics.RecordError("write", "telephony")
	return fmt.Errorf("telephony %s: %w", what, err)
}
