package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"qms/queue-client/internal/metrics"
)

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = time.Second
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateOpen
	stateClosing
)

// Callback receives messages routed to a subscribed topic.
type Callback func(Message)

type conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Client maintains the single shared WebSocket channel to the backend.
// Topic subscriptions outlive individual connections: while subscribers
// remain, a closed socket is re-dialed with exponential backoff and every
// held topic is resubscribed on open.
type Client struct {
	endpoint string

	dial  func(endpoint string) (conn, error)
	after func(d time.Duration, fn func()) (cancel func())

	mu              sync.Mutex
	state           state
	conn            conn
	gen             uint64
	attempts        int
	subs            map[string]map[int]Callback
	nextSub         int
	reconnectCancel func()

	wmu      sync.Mutex
	handlers map[string]func(Message)
}

// Endpoint derives the channel URL from the configured API origin,
// translating http(s) to ws(s).
func Endpoint(origin string) (string, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func New(origin string) (*Client, error) {
	endpoint, err := Endpoint(origin)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint: endpoint,
		dial:     dialWebsocket,
		after:    afterTimer,
		subs:     map[string]map[int]Callback{},
	}
	c.handlers = map[string]func(Message){
		messageTypeSubscribed: c.handleSubscribed,
		messageTypeError:      c.handleServerError,
	}
	return c, nil
}

// Connect is idempotent: a no-op while already connecting or open, so
// concurrent subscribers cannot produce duplicate sockets.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == stateConnecting || c.state == stateOpen {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.cancelReconnectLocked()
	c.mu.Unlock()
	go c.runConnect()
}

func (c *Client) runConnect() {
	socket, err := c.dial(c.endpoint)

	c.mu.Lock()
	if c.state != stateConnecting {
		// Disconnect won the race; discard the socket.
		c.mu.Unlock()
		if socket != nil {
			_ = socket.Close()
		}
		return
	}
	if err != nil {
		log.Printf("realtime dial error: %v", err)
		c.state = stateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}
	c.conn = socket
	c.state = stateOpen
	c.attempts = 0
	c.gen++
	gen := c.gen
	topics := make([]string, 0, len(c.subs))
	for topicID := range c.subs {
		topics = append(topics, topicID)
	}
	c.mu.Unlock()

	metrics.ConnectionOpen.Set(1)

	// Resubscribe before the read loop starts so no routed message can
	// beat the subscribe pass.
	for _, topicID := range topics {
		c.writeSubscribe(socket, topicID)
	}
	go c.readLoop(socket, gen)
}

func (c *Client) readLoop(socket conn, gen uint64) {
	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			// Socket errors always surface here as a read failure; this
			// is the single path that drives reconnection.
			break
		}
		c.handleIncoming(data)
	}
	_ = socket.Close()
	c.connectionClosed(gen)
}

func (c *Client) connectionClosed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != stateOpen {
		return
	}
	c.conn = nil
	c.state = stateDisconnected
	metrics.ConnectionOpen.Set(0)
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the backoff timer: baseDelay x 2^attempts,
// only while subscribers remain and the attempt budget is not exhausted.
func (c *Client) scheduleReconnectLocked() {
	if len(c.subs) == 0 || c.attempts >= maxReconnectAttempts {
		return
	}
	delay := reconnectBaseDelay << c.attempts
	c.attempts++
	metrics.ReconnectsTotal.Inc()
	c.cancelReconnectLocked()
	c.reconnectCancel = c.after(delay, c.reconnectFire)
}

// reconnectFire runs when the backoff timer elapses. A timer that was
// already in flight when Disconnect cleared the subscriptions must not
// bring the channel back.
func (c *Client) reconnectFire() {
	c.mu.Lock()
	if len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Connect()
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
}

// Subscribe registers cb for topicID and connects if needed. The returned
// function removes only this callback; the topic is dropped once its last
// callback is gone. Subscribing after an exhausted reconnect budget resets
// the attempt counter and retries.
func (c *Client) Subscribe(topicID string, cb Callback) (unsubscribe func()) {
	c.mu.Lock()
	if c.state == stateDisconnected && c.attempts >= maxReconnectAttempts {
		c.attempts = 0
	}
	set, ok := c.subs[topicID]
	if !ok {
		set = map[int]Callback{}
		c.subs[topicID] = set
	}
	c.nextSub++
	id := c.nextSub
	set[id] = cb
	socket := c.conn
	open := c.state == stateOpen
	needConnect := c.state == stateDisconnected
	c.mu.Unlock()

	if open {
		// New topic on a live socket announces itself right away; while
		// CONNECTING the onopen resubscription pass covers it.
		c.writeSubscribe(socket, topicID)
	} else if needConnect {
		c.Connect()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if set, ok := c.subs[topicID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(c.subs, topicID)
				}
			}
		})
	}
}

// Disconnect closes the socket, clears all subscriptions, and pins the
// attempt counter at the ceiling so an in-flight reconnect timer no-ops.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.state = stateClosing
	c.attempts = maxReconnectAttempts
	c.cancelReconnectLocked()
	c.subs = map[string]map[int]Callback{}
	socket := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if socket != nil {
		_ = socket.Close()
	}

	c.mu.Lock()
	c.state = stateDisconnected
	c.mu.Unlock()
	metrics.ConnectionOpen.Set(0)
}

// Open reports whether the channel currently has a live socket.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

func (c *Client) handleIncoming(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("realtime drop malformed message: %v", err)
		return
	}
	if msg.Type == "" {
		log.Printf("realtime drop message without type")
		return
	}
	metrics.MessagesTotal.WithLabelValues(msg.Type).Inc()
	if handler, ok := c.handlers[msg.Type]; ok {
		handler(msg)
		return
	}
	c.routeToTopic(msg)
}

func (c *Client) routeToTopic(msg Message) {
	c.mu.Lock()
	set := c.subs[msg.TopicID]
	callbacks := make([]Callback, 0, len(set))
	for _, cb := range set {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
}

func (c *Client) handleSubscribed(msg Message) {
	log.Printf("realtime subscribed topic=%s", msg.TopicID)
}

func (c *Client) handleServerError(msg Message) {
	log.Printf("realtime server error topic=%s payload=%s", msg.TopicID, string(msg.Payload))
}

func (c *Client) writeSubscribe(socket conn, topicID string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	err := socket.WriteJSON(subscribeMessage{Type: messageTypeSubscribe, TopicID: topicID})
	if err != nil {
		// The read loop observes the broken socket and drives reconnect.
		log.Printf("realtime subscribe write error topic=%s: %v", topicID, err)
	}
}

func dialWebsocket(endpoint string) (conn, error) {
	socket, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, err
	}
	return socket, nil
}

func afterTimer(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}
