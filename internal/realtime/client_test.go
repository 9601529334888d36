package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	mu     sync.Mutex
	writes []subscribeMessage
	readCh chan []byte
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{readCh: make(chan []byte, 8)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.readCh
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	msg, ok := v.(subscribeMessage)
	if !ok {
		return errors.New("unexpected write")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.readCh) })
	return nil
}

func (f *fakeConn) written() []subscribeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subscribeMessage, len(f.writes))
	copy(out, f.writes)
	return out
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New("http://example.test")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.after = func(time.Duration, func()) func() { return func() {} }
	c.dial = func(endpoint string) (conn, error) { return nil, errors.New("dial stubbed out") }
	return c
}

func registerTopic(c *Client, topicID string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	if c.subs[topicID] == nil {
		c.subs[topicID] = map[int]Callback{}
	}
	c.subs[topicID][c.nextSub] = cb
}

// forceOpen puts the client into the open state on a fake socket without
// going through a dial.
func forceOpen(c *Client, socket conn) {
	c.mu.Lock()
	c.state = stateOpen
	c.conn = socket
	c.gen++
	c.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndpointDerivation(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"http://queue.example:8081", "ws://queue.example:8081/ws"},
		{"https://queue.example", "wss://queue.example/ws"},
		{"https://queue.example/api?x=1", "wss://queue.example/ws"},
	}
	for _, tc := range cases {
		got, err := Endpoint(tc.origin)
		if err != nil {
			t.Fatalf("%s: %v", tc.origin, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.origin, tc.want, got)
		}
	}

	if _, err := Endpoint("ftp://queue.example"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestConnectIdempotent(t *testing.T) {
	c := newTestClient(t)
	var dials int32
	release := make(chan struct{})
	c.dial = func(endpoint string) (conn, error) {
		atomic.AddInt32(&dials, 1)
		<-release
		return newFakeConn(), nil
	}

	c.Connect()
	c.Connect()
	c.Connect()

	waitFor(t, "dial", func() bool { return atomic.LoadInt32(&dials) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Fatalf("expected exactly one dial, got %d", got)
	}
	close(release)
	waitFor(t, "open", c.Open)
	c.Disconnect()
}

func TestOpenResubscribesAllTopicsAndResetsAttempts(t *testing.T) {
	c := newTestClient(t)
	registerTopic(c, "tenant-a", func(Message) {})
	registerTopic(c, "tenant-b", func(Message) {})

	socket := newFakeConn()
	c.dial = func(endpoint string) (conn, error) { return socket, nil }
	c.mu.Lock()
	c.state = stateConnecting
	c.attempts = 3
	c.mu.Unlock()

	c.runConnect()

	writes := socket.written()
	topics := map[string]bool{}
	for _, msg := range writes {
		if msg.Type != messageTypeSubscribe {
			t.Fatalf("unexpected control message %+v", msg)
		}
		topics[msg.TopicID] = true
	}
	if !topics["tenant-a"] || !topics["tenant-b"] {
		t.Fatalf("resubscription pass incomplete: %+v", writes)
	}
	if !c.Open() {
		t.Fatalf("expected open state after dial")
	}
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("expected attempts reset on open, got %d", attempts)
	}
	c.Disconnect()
}

func TestSubscribeOnLiveSocketSendsControlMessage(t *testing.T) {
	c := newTestClient(t)
	socket := newFakeConn()
	forceOpen(c, socket)

	c.Subscribe("tenant-a", func(Message) {})

	writes := socket.written()
	if len(writes) != 1 || writes[0].TopicID != "tenant-a" || writes[0].Type != messageTypeSubscribe {
		t.Fatalf("unexpected writes: %+v", writes)
	}
	c.Disconnect()
}

func TestDispatchRoutesToTopicCallbacks(t *testing.T) {
	c := newTestClient(t)
	socket := newFakeConn()
	forceOpen(c, socket)

	var gotA, gotB []string
	c.Subscribe("tenant-a", func(msg Message) { gotA = append(gotA, msg.Type) })
	c.Subscribe("tenant-a", func(msg Message) { gotA = append(gotA, msg.Type) })
	c.Subscribe("tenant-b", func(msg Message) { gotB = append(gotB, msg.Type) })

	payload, _ := json.Marshal(Message{Type: "queue.changed", TopicID: "tenant-a"})
	c.handleIncoming(payload)

	if len(gotA) != 2 || gotA[0] != "queue.changed" {
		t.Fatalf("topic-a callbacks: %v", gotA)
	}
	if len(gotB) != 0 {
		t.Fatalf("topic-b must not receive tenant-a events: %v", gotB)
	}
	c.Disconnect()
}

func TestMalformedAndUnknownMessagesAreDropped(t *testing.T) {
	c := newTestClient(t)
	socket := newFakeConn()
	forceOpen(c, socket)

	fired := 0
	c.Subscribe("tenant-a", func(Message) { fired++ })

	c.handleIncoming([]byte("{not json"))
	c.handleIncoming([]byte(`{"topic_id":"tenant-a"}`))
	c.handleIncoming([]byte(`{"type":"subscribed","topic_id":"tenant-a"}`))
	c.handleIncoming([]byte(`{"type":"error","topic_id":"tenant-a"}`))
	c.handleIncoming([]byte(`{"type":"queue.changed","topic_id":"tenant-other"}`))

	if fired != 0 {
		t.Fatalf("dropped or control messages reached subscriber %d times", fired)
	}
	c.Disconnect()
}

func TestUnsubscribeRemovesOnlyThatCallback(t *testing.T) {
	c := newTestClient(t)
	socket := newFakeConn()
	forceOpen(c, socket)

	first, second := 0, 0
	unsubscribe := c.Subscribe("tenant-a", func(Message) { first++ })
	c.Subscribe("tenant-a", func(Message) { second++ })

	unsubscribe()
	unsubscribe()

	payload, _ := json.Marshal(Message{Type: "queue.changed", TopicID: "tenant-a"})
	c.handleIncoming(payload)

	if first != 0 || second != 1 {
		t.Fatalf("expected only the second callback to fire: first=%d second=%d", first, second)
	}

	c.mu.Lock()
	_, topicHeld := c.subs["tenant-a"]
	c.mu.Unlock()
	if !topicHeld {
		t.Fatalf("topic dropped while a callback remains")
	}
	c.Disconnect()
}

func TestTopicDroppedWhenLastCallbackRemoved(t *testing.T) {
	c := newTestClient(t)
	unsubscribe := c.Subscribe("tenant-a", func(Message) {})
	unsubscribe()

	c.mu.Lock()
	held := len(c.subs)
	c.mu.Unlock()
	if held != 0 {
		t.Fatalf("expected empty subscription table, got %d topics", held)
	}
}

func TestReconnectBackoffSequence(t *testing.T) {
	c := newTestClient(t)
	var delays []time.Duration
	c.after = func(d time.Duration, fn func()) func() {
		delays = append(delays, d)
		return func() {}
	}
	c.dial = func(endpoint string) (conn, error) { return nil, errors.New("connection refused") }

	c.mu.Lock()
	c.subs["tenant-a"] = map[int]Callback{1: func(Message) {}}
	c.mu.Unlock()

	// Each failed dial schedules the next attempt, exactly six tries in.
	for i := 0; i < 6; i++ {
		c.mu.Lock()
		c.state = stateConnecting
		c.mu.Unlock()
		c.runConnect()
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("expected %d scheduled attempts, got %d (%v)", len(want), len(delays), delays)
	}
	for i, d := range want {
		if delays[i] != d {
			t.Fatalf("attempt %d: expected delay %v, got %v", i, d, delays[i])
		}
	}
}

func TestNoReconnectWithoutSubscribers(t *testing.T) {
	c := newTestClient(t)
	scheduled := 0
	c.after = func(time.Duration, func()) func() {
		scheduled++
		return func() {}
	}
	c.dial = func(endpoint string) (conn, error) { return nil, errors.New("connection refused") }

	c.mu.Lock()
	c.state = stateConnecting
	c.mu.Unlock()
	c.runConnect()

	if scheduled != 0 {
		t.Fatalf("reconnect scheduled with no subscribers")
	}
}

func TestSubscribeAfterExhaustedBudgetResetsAttempts(t *testing.T) {
	c := newTestClient(t)
	socket := newFakeConn()
	c.dial = func(endpoint string) (conn, error) { return socket, nil }
	c.mu.Lock()
	c.attempts = maxReconnectAttempts
	c.mu.Unlock()

	c.Subscribe("tenant-a", func(Message) {})

	waitFor(t, "open", c.Open)
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("expected attempts reset by fresh subscribe, got %d", attempts)
	}
	c.Disconnect()
}

func TestCloseDrivesReconnectThroughReadLoop(t *testing.T) {
	c := newTestClient(t)
	var delays []time.Duration
	var mu sync.Mutex
	c.after = func(d time.Duration, fn func()) func() {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return func() {}
	}
	socket := newFakeConn()
	c.dial = func(endpoint string) (conn, error) { return socket, nil }

	c.Subscribe("tenant-a", func(Message) {})
	waitFor(t, "open", c.Open)

	_ = socket.Close()
	waitFor(t, "reconnect scheduled", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delays) == 1
	})
	mu.Lock()
	delay := delays[0]
	mu.Unlock()
	if delay != time.Second {
		t.Fatalf("first reconnect delay: expected 1s, got %v", delay)
	}
}

func TestDisconnectSuppressesInFlightTimerAndSilences(t *testing.T) {
	c := newTestClient(t)
	var fires []func()
	c.after = func(d time.Duration, fn func()) func() {
		fires = append(fires, fn)
		return func() {}
	}
	dials := 0
	c.dial = func(endpoint string) (conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	c.mu.Lock()
	c.subs["tenant-a"] = map[int]Callback{1: func(Message) { t.Fatalf("callback after disconnect") }}
	c.state = stateConnecting
	c.mu.Unlock()
	c.runConnect()
	if len(fires) != 1 {
		t.Fatalf("expected one armed timer, got %d", len(fires))
	}

	c.Disconnect()
	dialsBefore := dials

	// Timer that had already fired when Disconnect ran.
	fires[0]()
	time.Sleep(10 * time.Millisecond)
	if dials != dialsBefore {
		t.Fatalf("in-flight reconnect timer dialed after Disconnect")
	}

	payload, _ := json.Marshal(Message{Type: "queue.changed", TopicID: "tenant-a"})
	c.handleIncoming(payload)
}
