package telephony

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/twiml"

	"github.com/lexiqai/realtime-bridge/internal/assistant"
)

// MediaStreamPath is where Twilio opens the media stream WebSocket
const MediaStreamPath = "/media-stream"

// Webhooks serves the HTTP endpoints Twilio and operators call before a stream exists
type Webhooks struct {
	profile    assistant.Profile
	publicHost string
	logger     zerolog.Logger
}

// NewWebhooks creates the webhook handlers. When publicHost is empty the
// request Host is used to build the stream URL.
func NewWebhooks(profile assistant.Profile, publicHost string, logger zerolog.Logger) *Webhooks {
	return &Webhooks{profile: profile, publicHost: publicHost, logger: logger}
}

// Index reports that the service is running
func (h *Webhooks) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": h.profile.StatusMessage()})
}

// IncomingCall answers a Twilio voice webhook with TwiML that greets the
// caller and connects the call to the media stream endpoint.
func (h *Webhooks) IncomingCall(w http.ResponseWriter, r *http.Request) {
	streamURL := h.StreamURL(r)

	greeting := &twiml.VoiceSay{Message: h.profile.Greeting}
	pause := &twiml.VoicePause{Length: "1"}
	prompt := &twiml.VoiceSay{Message: h.profile.ConnectPrompt}
	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{&twiml.VoiceStream{Url: streamURL}},
	}

	body, err := twiml.Voice([]twiml.Element{greeting, pause, prompt, connect})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render TwiML")
		http.Error(w, "failed to render TwiML", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("stream_url", streamURL).
		Str("call_sid", r.FormValue("CallSid")).
		Msg("Incoming call")

	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(body))
}

// StreamURL is the wss URL Twilio should connect the media stream to
func (h *Webhooks) StreamURL(r *http.Request) string {
	host := h.publicHost
	if host == "" {
		host = hostname(r.Host)
	}
	return "wss://" + host + MediaStreamPath
}

func hostname(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
