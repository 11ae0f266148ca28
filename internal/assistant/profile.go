// Package assistant holds the static persona and knowledge base the engine is
// configured with, plus the phrases the call controller speaks before bridging.
package assistant

import (
	"fmt"
	"os"
	"strings"
)

// Profile is the immutable description of the assistant for every call
type Profile struct {
	Name           string
	SystemPrompt   string
	KnowledgeBase  string
	Greeting       string // spoken by Twilio before the stream opens
	ConnectPrompt  string // spoken by Twilio after the pause
	OpeningMessage string // seeded as a user turn so the AI speaks first
}

// Default returns the built-in career counselling profile
func Default() Profile {
	return Profile{
		Name:           "AI Career Counselor",
		SystemPrompt:   systemPrompt,
		KnowledgeBase:  knowledgeBase,
		Greeting:       "Welcome to the AI Career Counselor for Indian students, powered by Twilio and OpenAI. Please wait while we connect your call.",
		ConnectPrompt:  "Okay, you can start talking! Tell me your stream and what you're interested in.",
		OpeningMessage: "Hello! Welcome to the AI Career Counselor for Indian students. I can help you explore courses and careers after 12th grade. Please tell me your stream—Science, Arts, or Commerce—and what interests you!",
	}
}

// Load returns the default profile with the system prompt and knowledge base
// replaced by the contents of the given files, when set.
func Load(instructionsFile, knowledgeBaseFile string) (Profile, error) {
	p := Default()

	if instructionsFile != "" {
		text, err := readText(instructionsFile)
		if err != nil {
			return Profile{}, fmt.Errorf("instructions: %w", err)
		}
		p.SystemPrompt = text
	}
	if knowledgeBaseFile != "" {
		text, err := readText(knowledgeBaseFile)
		if err != nil {
			return Profile{}, fmt.Errorf("knowledge base: %w", err)
		}
		p.KnowledgeBase = text
	}

	return p, nil
}

// Instructions is the full behavioural text sent to the engine
func (p Profile) Instructions() string {
	return p.SystemPrompt + p.KnowledgeBase
}

// StatusMessage is returned by the index endpoint
func (p Profile) StatusMessage() string {
	return fmt.Sprintf("Twilio %s Server is running!", p.Name)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return text, nil
}
