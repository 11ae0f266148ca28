package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const markPrefix = "responsePart"

// MarkResult describes what an acknowledgement did to the mark queue
type MarkResult int

const (
	MarkAcked     MarkResult = iota // oldest pending mark removed
	MarkUnderflow                   // queue was already empty
	MarkStale                       // ack for a mark cleared by an earlier interruption
)

func (r MarkResult) String() string {
	switch r {
	case MarkAcked:
		return "acked"
	case MarkUnderflow:
		return "underflow"
	case MarkStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Interruption is the state captured when a barge-in is handled
type Interruption struct {
	StreamSid    string
	ItemID       string // empty when no assistant item is known
	ElapsedMs    int64  // audio the caller heard, never negative
	LatestMs     int64
	StartMs      int64
	ClearedMarks int
}

// State is a copy of the session fields
type State struct {
	StreamSid         string
	LatestTimestampMs int64
	CurrentItemID     string
	PlaybackStartMs   int64
	HasPlaybackStart  bool
	PendingMarks      []string
	Generation        uint64
}

// Session is the per-call bridge state shared by the two relays
type Session struct {
	mu sync.Mutex

	streamSid         string
	latestTimestampMs int64
	currentItemID     string
	playbackStartMs   int64
	hasPlaybackStart  bool

	pendingMarks []string
	generation   uint64 // bumped whenever playback is cleared
	sequence     uint64
	maxMarks     int
}

// NewSession creates an empty session holding at most maxPendingMarks unacknowledged marks
func NewSession(maxPendingMarks int) *Session {
	if maxPendingMarks <= 0 {
		maxPendingMarks = 1
	}
	return &Session{maxMarks: maxPendingMarks}
}

// Start binds the session to a new stream and forgets any previous response
func (s *Session) Start(streamSid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streamSid = streamSid
	s.latestTimestampMs = 0
	s.resetResponseLocked()
}

// ObserveMedia records the playback clock of an inbound frame
func (s *Session) ObserveMedia(timestampMs int64) {
	s.mu.Lock()
	s.latestTimestampMs = timestampMs
	s.mu.Unlock()
}

// StreamSid returns the current stream id, empty before start
func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

// HasItem reports whether an assistant item is currently being played
func (s *Session) HasItem() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentItemID != ""
}

// Playback is what the outbound relay needs to send one chunk of assistant audio
type Playback struct {
	StreamSid   string
	MarkName    string // empty when no stream is bound
	DroppedMark bool   // the queue was full and its oldest mark was discarded
	Started     bool   // this chunk anchored a new response
	StartMs     int64
}

// RecordPlayback notes that a chunk of synthesized audio is being sent. The
// first chunk of a response anchors playback to the latest inbound timestamp,
// itemID replaces the current item when set, and a mark is queued when a
// stream is bound. When the queue is full the oldest mark is dropped.
func (s *Session) RecordPlayback(itemID string) Playback {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Playback{StreamSid: s.streamSid}
	if !s.hasPlaybackStart {
		s.playbackStartMs = s.latestTimestampMs
		s.hasPlaybackStart = true
		p.Started = true
	}
	p.StartMs = s.playbackStartMs
	if itemID != "" {
		s.currentItemID = itemID
	}

	if s.streamSid == "" {
		return p
	}
	s.sequence++
	p.MarkName = fmt.Sprintf("%s-%d-%d", markPrefix, s.generation, s.sequence)
	if len(s.pendingMarks) >= s.maxMarks {
		s.pendingMarks = s.pendingMarks[1:]
		p.DroppedMark = true
	}
	s.pendingMarks = append(s.pendingMarks, p.MarkName)
	return p
}

// AckMark handles a playback acknowledgement. Acks for marks issued before the
// last clear are ignored; any other ack removes the oldest pending mark.
func (s *Session) AckMark(name string) MarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen, ok := parseMarkGeneration(name); ok && gen < s.generation {
		return MarkStale
	}
	if len(s.pendingMarks) == 0 {
		return MarkUnderflow
	}
	s.pendingMarks[0] = ""
	s.pendingMarks = s.pendingMarks[1:]
	return MarkAcked
}

// BeginInterruption captures and resets the response state in one step. It
// returns false when nothing is playing: no pending marks or no playback anchor.
func (s *Session) BeginInterruption() (Interruption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pendingMarks) == 0 || !s.hasPlaybackStart {
		return Interruption{}, false
	}

	elapsed := s.latestTimestampMs - s.playbackStartMs
	if elapsed < 0 {
		elapsed = 0
	}
	intr := Interruption{
		StreamSid:    s.streamSid,
		ItemID:       s.currentItemID,
		ElapsedMs:    elapsed,
		LatestMs:     s.latestTimestampMs,
		StartMs:      s.playbackStartMs,
		ClearedMarks: len(s.pendingMarks),
	}
	s.resetResponseLocked()
	return intr, true
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks := make([]string, len(s.pendingMarks))
	copy(marks, s.pendingMarks)
	return State{
		StreamSid:         s.streamSid,
		LatestTimestampMs: s.latestTimestampMs,
		CurrentItemID:     s.currentItemID,
		PlaybackStartMs:   s.playbackStartMs,
		HasPlaybackStart:  s.hasPlaybackStart,
		PendingMarks:      marks,
		Generation:        s.generation,
	}
}

func (s *Session) resetResponseLocked() {
	s.currentItemID = ""
	s.playbackStartMs = 0
	s.hasPlaybackStart = false
	s.pendingMarks = nil
	s.generation++
	s.sequence = 0
}

// parseMarkGeneration extracts the generation from names built by RecordPlayback
func parseMarkGeneration(name string) (uint64, bool) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 || parts[0] != markPrefix {
		return 0, false
	}
	gen, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}
