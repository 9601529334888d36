package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/queue-client/internal/models"
)

// RTTObserver receives the round-trip time of every completed request;
// the network status tracker implements it.
type RTTObserver interface {
	Observe(rtt time.Duration)
}

type Config struct {
	Origin  string
	Timeout time.Duration
	// Observer, when set, is fed each request round-trip time.
	Observer RTTObserver
	// OnUnauthorized runs once per 401 response so the UI layer can
	// redirect to login.
	OnUnauthorized func()
}

// Client is the typed REST wrapper the sync layer polls through.
type Client struct {
	origin         string
	httpClient     *http.Client
	observer       RTTObserver
	onUnauthorized func()
}

func New(cfg Config) (*Client, error) {
	origin := strings.TrimRight(strings.TrimSpace(cfg.Origin), "/")
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid api origin %q", cfg.Origin)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		origin: origin,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		observer:       cfg.Observer,
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

// Origin returns the configured API origin, for deriving the realtime
// channel endpoint.
func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) GetQueueSnapshot(ctx context.Context, tenantID string) (models.QueueSnapshot, error) {
	query := url.Values{"tenant_id": {tenantID}}
	var snapshot models.QueueSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/queue/snapshot", query, nil, &snapshot); err != nil {
		return models.QueueSnapshot{}, err
	}
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}
	return snapshot, nil
}

func (c *Client) GetTicket(ctx context.Context, tenantID, ticketID string) (models.Ticket, error) {
	query := url.Values{"tenant_id": {tenantID}}
	var ticket models.Ticket
	if err := c.do(ctx, http.MethodGet, "/api/tickets/"+ticketID, query, nil, &ticket); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

type JoinQueueInput struct {
	TenantID          string  `json:"tenant_id"`
	CustomerName      string  `json:"customer_name"`
	PreferredBarberID *string `json:"preferred_barber_id,omitempty"`
	RequestID         string  `json:"request_id"`
}

func (c *Client) JoinQueue(ctx context.Context, input JoinQueueInput) (models.Ticket, error) {
	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}
	var ticket models.Ticket
	if err := c.do(ctx, http.MethodPost, "/api/tickets", nil, input, &ticket); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

type TicketActionInput struct {
	TenantID  string `json:"tenant_id"`
	TicketID  string `json:"-"`
	BarberID  string `json:"barber_id,omitempty"`
	RequestID string `json:"request_id"`
}

func (c *Client) CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error) {
	return c.ticketAction(ctx, "cancel", input)
}

func (c *Client) StartServing(ctx context.Context, input TicketActionInput) (models.Ticket, error) {
	return c.ticketAction(ctx, "start", input)
}

func (c *Client) CompleteTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error) {
	return c.ticketAction(ctx, "complete", input)
}

func (c *Client) ticketAction(ctx context.Context, action string, input TicketActionInput) (models.Ticket, error) {
	if input.RequestID == "" {
		input.RequestID = uuid.NewString()
	}
	path := "/api/tickets/" + input.TicketID + "/actions/" + action
	var ticket models.Ticket
	if err := c.do(ctx, http.MethodPost, path, nil, input, &ticket); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

type presenceRequest struct {
	TenantID string `json:"tenant_id"`
	Active   bool   `json:"active"`
}

// UpdateBarberPresence toggles whether a barber is accepting customers.
func (c *Client) UpdateBarberPresence(ctx context.Context, tenantID, barberID string, active bool) error {
	path := "/api/barbers/" + barberID + "/presence"
	return c.do(ctx, http.MethodPatch, path, nil, presenceRequest{TenantID: tenantID, Active: active}, nil)
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.origin + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if c.observer != nil {
		c.observer.Observe(time.Since(start))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode >= 300 {
		var envelope errorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
			return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, errorForCode(resp.StatusCode, ""))
		}
		mapped := errorForCode(resp.StatusCode, envelope.Error.Code)
		return fmt.Errorf("%s %s: %s: %w", method, path, envelope.Error.Message, mapped)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("api malformed payload method=%s path=%s: %v", method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, ErrBadPayload)
	}
	return nil
}
