package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/realtime-bridge/internal/realtime"
	"github.com/lexiqai/realtime-bridge/internal/telephony"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// interrupt stops the assistant's current response when the caller barges in.
// The engine is told how much audio was actually heard and the telephony
// side drops whatever it has buffered.
func (b *Bridge) interrupt() error {
	intr, ok := b.session.BeginInterruption()
	if !ok {
		b.metrics.RecordInterruption("ignored", 0)
		return nil
	}

	if b.showTiming {
		b.logger.Info().
			Int64("latest_ms", intr.LatestMs).
			Int64("start_ms", intr.StartMs).
			Int64("elapsed_ms", intr.ElapsedMs).
			Msg("Calculating elapsed time for truncation")
	}

	outcome := "cleared"
	if intr.ItemID != "" {
		if b.showTiming {
			b.logger.Info().Str("item_id", intr.ItemID).Int64("audio_end_ms", intr.ElapsedMs).Msg("Truncating item")
		}
		err := b.engine.WriteJSON(realtime.NewTruncate(intr.ItemID, intr.ElapsedMs))
		switch {
		case err == nil:
			outcome = "truncated"
		case errors.Is(err, transport.ErrClosed):
			// engine is going away; the caller still needs the clear
		default:
			b.metrics.RecordError("write", "realtime")
			return fmt.Errorf("engine truncate: %w", err)
		}
	}

	if err := b.telephony.WriteJSON(telephony.NewClearMessage(intr.StreamSid)); err != nil {
		return b.telephonyWriteErr("clear", err)
	}

	b.metrics.RecordInterruption(outcome, time.Duration(intr.ElapsedMs)*time.Millisecond)
	b.logger.Info().
		Str("item_id", intr.ItemID).
		Int64("audio_end_ms", intr.ElapsedMs).
		Int("cleared_marks", intr.ClearedMarks).
		Msg("Caller interrupted response")
	return nil
}
