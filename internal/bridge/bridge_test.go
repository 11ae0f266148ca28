package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-bridge/internal/realtime"
	"github.com/lexiqai/realtime-bridge/internal/telephony"
	"github.com/lexiqai/realtime-bridge/internal/transport"
)

// fakeConn is an in-memory Conn. Frames pushed to in are returned by
// ReadMessage; closing in reads as a peer hangup.
type fakeConn struct {
	in chan []byte

	mu       sync.Mutex
	written  []map[string]any
	writeErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	if !c.Open() {
		return transport.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.written = append(c.written, m)
	return nil
}

func (c *fakeConn) Open() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) types(key string) []string {
	var out []string
	for _, m := range c.messages() {
		out = append(out, m[key].(string))
	}
	return out
}

func newTestBridge(maxMarks int) (*Bridge, *fakeConn, *fakeConn) {
	tel, eng := newFakeConn(), newFakeConn()
	b := New(tel, eng, Options{
		LogEventTypes:   []string{"error", "response.done"},
		ShowTimingMath:  true,
		MaxPendingMarks: maxMarks,
		Logger:          zerolog.Nop(),
	})
	return b, tel, eng
}

func mustTelephony(t *testing.T, b *Bridge, raw string) {
	t.Helper()
	ev, err := telephony.DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeEvent(%s) failed: %v", raw, err)
	}
	if _, err := b.handleTelephonyEvent(ev); err != nil {
		t.Fatalf("handleTelephonyEvent(%s) failed: %v", raw, err)
	}
}

func mustEngine(t *testing.T, b *Bridge, raw string) {
	t.Helper()
	ev, err := realtime.DecodeServerEvent([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeServerEvent(%s) failed: %v", raw, err)
	}
	if err := b.handleEngineEvent(ev); err != nil {
		t.Fatalf("handleEngineEvent(%s) failed: %v", raw, err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const (
	startMZ1   = `{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`
	deltaItemX = `{"type":"response.audio.delta","item_id":"x","delta":"AAEC"}`
	speechBeg  = `{"type":"input_audio_buffer.speech_started","audio_start_ms":300}`
)

func TestBridge_BargeInTruncatesHeardAudio(t *testing.T) {
	b, tel, eng := newTestBridge(100)

	mustTelephony(t, b, startMZ1)
	mustTelephony(t, b, `{"event":"media","media":{"timestamp":"0","payload":"/w=="}}`)
	mustEngine(t, b, deltaItemX)
	mustTelephony(t, b, `{"event":"media","media":{"timestamp":"250","payload":"/w=="}}`)
	mustEngine(t, b, deltaItemX)

	st := b.Session().Snapshot()
	if st.PlaybackStartMs != 0 || !st.HasPlaybackStart {
		t.Errorf("Expected playback start 0, got %+v", st)
	}
	if len(st.PendingMarks) != 2 {
		t.Errorf("Expected 2 pending marks, got %d", len(st.PendingMarks))
	}

	mustEngine(t, b, speechBeg)

	if got := tel.types("event"); !equalStrings(got, []string{"media", "mark", "media", "mark", "clear"}) {
		t.Fatalf("Unexpected telephony messages %v", got)
	}
	telMsgs := tel.messages()
	if telMsgs[0]["streamSid"] != "MZ1" || telMsgs[0]["media"].(map[string]any)["payload"] != "AAEC" {
		t.Errorf("Expected audio forwarded unchanged to MZ1, got %v", telMsgs[0])
	}
	if telMsgs[4]["streamSid"] != "MZ1" {
		t.Errorf("Expected clear for MZ1, got %v", telMsgs[4])
	}

	if got := eng.types("type"); !equalStrings(got, []string{
		"input_audio_buffer.append",
		"input_audio_buffer.append",
		"conversation.item.truncate",
	}) {
		t.Fatalf("Unexpected engine messages %v", got)
	}
	truncate := eng.messages()[2]
	if truncate["item_id"] != "x" || truncate["audio_end_ms"] != float64(250) || truncate["content_index"] != float64(0) {
		t.Errorf("Unexpected truncate %v", truncate)
	}
	if eng.messages()[0]["audio"] != "/w==" {
		t.Errorf("Expected caller payload forwarded unchanged, got %v", eng.messages()[0])
	}

	st = b.Session().Snapshot()
	if len(st.PendingMarks) != 0 || st.CurrentItemID != "" || st.HasPlaybackStart {
		t.Errorf("Expected state reset after barge-in, got %+v", st)
	}
}

func TestBridge_SpeechWithoutResponseIsIgnored(t *testing.T) {
	b, tel, eng := newTestBridge(100)

	mustTelephony(t, b, startMZ1)
	mustEngine(t, b, speechBeg)

	if n := len(tel.messages()); n != 0 {
		t.Errorf("Expected no telephony messages, got %v", tel.messages())
	}
	if n := len(eng.messages()); n != 0 {
		t.Errorf("Expected no engine messages, got %v", eng.messages())
	}
}

func TestBridge_MarkOnEmptyQueue(t *testing.T) {
	b, _, _ := newTestBridge(100)
	mustTelephony(t, b, startMZ1)

	before := b.Session().Snapshot()
	mustTelephony(t, b, `{"event":"mark","mark":{"name":"responsePart-1-1"}}`)
	after := b.Session().Snapshot()

	if len(after.PendingMarks) != 0 || after.StreamSid != before.StreamSid || after.Generation != before.Generation {
		t.Errorf("Expected no state change, before %+v after %+v", before, after)
	}
}

func TestBridge_MarkAckPopsOne(t *testing.T) {
	b, tel, _ := newTestBridge(100)
	mustTelephony(t, b, startMZ1)
	mustEngine(t, b, deltaItemX)
	mustEngine(t, b, deltaItemX)

	name := tel.messages()[1]["mark"].(map[string]any)["name"].(string)
	mustTelephony(t, b, `{"event":"mark","mark":{"name":"`+name+`"}}`)

	if n := len(b.Session().Snapshot().PendingMarks); n != 1 {
		t.Errorf("Expected 1 pending mark after one ack, got %d", n)
	}
}

func TestBridge_AudioBeforeStart(t *testing.T) {
	b, tel, _ := newTestBridge(100)

	mustEngine(t, b, deltaItemX)

	msgs := tel.messages()
	if len(msgs) != 1 || msgs[0]["event"] != "media" || msgs[0]["streamSid"] != "" {
		t.Errorf("Expected a single media frame without stream id, got %v", msgs)
	}
	if n := len(b.Session().Snapshot().PendingMarks); n != 0 {
		t.Errorf("Expected no marks without a stream, got %d", n)
	}
}

func TestBridge_InterruptWithoutItemOnlyClears(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	mustTelephony(t, b, startMZ1)
	mustEngine(t, b, `{"type":"response.audio.delta","delta":"AAEC"}`)

	if err := b.interrupt(); err != nil {
		t.Fatalf("interrupt failed: %v", err)
	}

	if got := tel.types("event"); !equalStrings(got, []string{"media", "mark", "clear"}) {
		t.Errorf("Unexpected telephony messages %v", got)
	}
	if n := len(eng.messages()); n != 0 {
		t.Errorf("Expected no truncate without an item id, got %v", eng.messages())
	}
}

func TestBridge_MediaSkippedWhenEngineClosed(t *testing.T) {
	b, _, eng := newTestBridge(100)
	mustTelephony(t, b, startMZ1)
	eng.Close()

	mustTelephony(t, b, `{"event":"media","media":{"timestamp":"20","payload":"/w=="}}`)

	if n := len(eng.messages()); n != 0 {
		t.Errorf("Expected no writes to a closed engine, got %d", n)
	}
	if ts := b.Session().Snapshot().LatestTimestampMs; ts != 20 {
		t.Errorf("Expected timestamp to be tracked, got %d", ts)
	}
}

func TestBridge_EngineErrorDoesNotEndCall(t *testing.T) {
	b, _, _ := newTestBridge(100)
	mustEngine(t, b, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	mustEngine(t, b, `{"type":"response.done","response":{}}`)
}

func TestBridge_StopEndsInbound(t *testing.T) {
	b, _, _ := newTestBridge(100)
	ev, _ := telephony.DecodeEvent([]byte(`{"event":"stop","stop":{"callSid":"CA1"}}`))
	done, err := b.handleTelephonyEvent(ev)
	if err != nil || !done {
		t.Errorf("Expected stop to end the relay, got done=%v err=%v", done, err)
	}
}

func runBridge(t *testing.T, b *Bridge) <-chan error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- b.Run(context.Background()) }()
	return result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Bridge did not terminate")
		return nil
	}
}

func TestRun_StopClosesBoth(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	result := runBridge(t, b)

	tel.in <- []byte(startMZ1)
	tel.in <- []byte(`{"event":"stop","stop":{"callSid":"CA1"}}`)

	if err := waitResult(t, result); err != nil {
		t.Errorf("Expected clean termination, got %v", err)
	}
	if tel.Open() || eng.Open() {
		t.Error("Expected both connections closed")
	}
}

func TestRun_EngineHangupClosesTelephony(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	result := runBridge(t, b)

	close(eng.in)

	if err := waitResult(t, result); err != nil {
		t.Errorf("Expected clean termination, got %v", err)
	}
	if tel.Open() {
		t.Error("Expected telephony connection closed")
	}
}

func TestRun_MalformedEventEndsSession(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	result := runBridge(t, b)

	tel.in <- []byte(`{"event":"media","media":{"timestamp":"5"}}`)

	err := waitResult(t, result)
	if !errors.Is(err, telephony.ErrMalformedEvent) {
		t.Errorf("Expected ErrMalformedEvent, got %v", err)
	}
	if tel.Open() || eng.Open() {
		t.Error("Expected both connections closed")
	}
}

func TestRun_WriteFailureEndsSession(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	tel.failWrites(errors.New("broken pipe"))
	result := runBridge(t, b)

	eng.in <- []byte(deltaItemX)

	if err := waitResult(t, result); err == nil {
		t.Error("Expected the write failure to be reported")
	}
	if tel.Open() || eng.Open() {
		t.Error("Expected both connections closed")
	}
}

func TestBridge_AppendAfterEngineHangup(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.ReadMessage()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Engine dial failed: %v", err)
	}
	eng := transport.New(ws, time.Second)
	defer eng.Close()

	if _, err := eng.ReadMessage(); !transport.IsClosure(err) {
		t.Fatalf("Expected engine hangup, got %v", err)
	}

	b := New(newFakeConn(), eng, Options{MaxPendingMarks: 10, Logger: zerolog.Nop()})
	if !eng.Open() {
		t.Fatal("Expected the engine conn to still report open")
	}
	if err := b.forwardCallerAudio(telephony.MediaEvent{TimestampMs: 20, Payload: "/w=="}); err != nil {
		t.Errorf("Expected append after hangup to be skipped, got %v", err)
	}
}

func TestBridge_ClearSentWhenTruncateRacesHangup(t *testing.T) {
	b, tel, eng := newTestBridge(100)
	mustTelephony(t, b, startMZ1)
	mustEngine(t, b, deltaItemX)

	eng.failWrites(transport.ErrClosed)
	mustEngine(t, b, speechBeg)

	if got := tel.types("event"); !equalStrings(got, []string{"media", "mark", "clear"}) {
		t.Errorf("Expected clear despite the closed engine, got %v", got)
	}
	if n := len(b.Session().Snapshot().PendingMarks); n != 0 {
		t.Errorf("Expected marks cleared, got %d", n)
	}
}

func TestBridge_DeltaAfterTelephonyHangup(t *testing.T) {
	b, tel, _ := newTestBridge(100)
	mustTelephony(t, b, startMZ1)

	tel.failWrites(transport.ErrClosed)
	mustEngine(t, b, deltaItemX)
	mustEngine(t, b, speechBeg)
}

func TestRun_ConcurrentRelays(t *testing.T) {
	b, tel, eng := newTestBridge(8)
	result := runBridge(t, b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			tel.in <- []byte(fmt.Sprintf(`{"event":"start","start":{"streamSid":"MZ%d"}}`, i))
			for ts := 0; ts < 200; ts += 20 {
				tel.in <- []byte(fmt.Sprintf(`{"event":"media","media":{"timestamp":"%d","payload":"/w=="}}`, ts))
			}
			tel.in <- []byte(`{"event":"mark","mark":{"name":"responsePart-1-1"}}`)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			eng.in <- []byte(fmt.Sprintf(`{"type":"response.audio.delta","item_id":"item_%d","delta":"AAEC"}`, i))
			eng.in <- []byte(deltaItemX)
			if i%3 == 0 {
				eng.in <- []byte(speechBeg)
			}
		}
	}()
	wg.Wait()
	close(eng.in)

	if err := waitResult(t, result); err != nil {
		t.Fatalf("Expected clean termination, got %v", err)
	}

	// every mark follows the media frame it tags, on the same stream
	msgs := tel.messages()
	for i, m := range msgs {
		if m["event"] != "mark" {
			continue
		}
		if i == 0 || msgs[i-1]["event"] != "media" || msgs[i-1]["streamSid"] != m["streamSid"] {
			t.Errorf("Mark %v at %d does not follow its media frame", m, i)
		}
	}
	if n := len(b.Session().Snapshot().PendingMarks); n > 8 {
		t.Errorf("Expected pending marks within bound, got %d", n)
	}
}
