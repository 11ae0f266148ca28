package realtime

import (
	"fmt"

	"github.com/lexiqai/realtime-bridge/internal/assistant"
	"github.com/lexiqai/realtime-bridge/internal/config"
)

// Writer sends JSON messages on an engine connection
type Writer interface {
	WriteJSON(v any) error
}

// SessionConfig is the per-call engine configuration
type SessionConfig struct {
	Voice          string
	AudioFormat    string
	Instructions   string
	Temperature    float64
	OpeningMessage string // empty when the caller speaks first
}

// NewSessionConfig combines service configuration with the assistant profile
func NewSessionConfig(cfg *config.Config, profile assistant.Profile) SessionConfig {
	sc := SessionConfig{
		Voice:        cfg.RealtimeVoice,
		AudioFormat:  cfg.RealtimeAudioFormat,
		Instructions: profile.Instructions(),
		Temperature:  cfg.RealtimeTemperature,
	}
	if cfg.AISpeaksFirst {
		sc.OpeningMessage = profile.OpeningMessage
	}
	return sc
}

// Settings returns the session.update body
func (sc SessionConfig) Settings() SessionSettings {
	return SessionSettings{
		TurnDetection:     TurnDetection{Type: "server_vad"},
		InputAudioFormat:  sc.AudioFormat,
		OutputAudioFormat: sc.AudioFormat,
		Voice:             sc.Voice,
		Instructions:      sc.Instructions,
		Modalities:        []string{"text", "audio"},
		Temperature:       sc.Temperature,
	}
}

// Initialize configures a freshly connected engine session and, when an
// opening message is set, asks the engine to speak first.
func Initialize(w Writer, sc SessionConfig) error {
	if err := w.WriteJSON(NewSessionUpdate(sc.Settings())); err != nil {
		return fmt.Errorf("session update: %w", err)
	}

	if sc.OpeningMessage == "" {
		return nil
	}
	if err := w.WriteJSON(NewUserMessage(sc.OpeningMessage)); err != nil {
		return fmt.Errorf("opening message: %w", err)
	}
	if err := w.WriteJSON(NewResponseCreate()); err != nil {
		return fmt.Errorf("response create: %w", err)
	}
	return nil
}
