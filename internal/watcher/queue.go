package watcher

import (
	"context"
	"time"

	"qms/queue-client/internal/estimate"
	"qms/queue-client/internal/models"
	"qms/queue-client/internal/poller"
)

// QueueAPI is the subset of the REST client the watcher composes over.
type QueueAPI interface {
	GetQueueSnapshot(ctx context.Context, tenantID string) (models.QueueSnapshot, error)
	GetTicket(ctx context.Context, tenantID, ticketID string) (models.Ticket, error)
}

type QueueConfig struct {
	API      QueueAPI
	TenantID string
	// TicketID, when set, additionally tracks one ticket (the customer's
	// own) at a faster cadence.
	TicketID string

	SnapshotInterval time.Duration
	TicketInterval   time.Duration
	// AvgServiceMinutes feeds the wait estimator.
	AvgServiceMinutes int

	Network   poller.NetworkSource
	Scheduler poller.Scheduler
	Channel   Channel
	OnChange  func()
}

// Queue is the single source of truth a page depends on: a snapshot
// resource, an optional own-ticket resource, and derived wait estimates,
// invalidated by realtime events for the tenant topic.
type Queue struct {
	Snapshot *Resource[models.QueueSnapshot]
	Ticket   *Resource[models.Ticket]

	avgServiceMinutes int
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 15 * time.Second
	}
	if cfg.TicketInterval <= 0 {
		cfg.TicketInterval = 10 * time.Second
	}

	q := &Queue{avgServiceMinutes: cfg.AvgServiceMinutes}
	q.Snapshot = New(Config[models.QueueSnapshot]{
		Name: "snapshot",
		Fetch: func(ctx context.Context) (models.QueueSnapshot, error) {
			return cfg.API.GetQueueSnapshot(ctx, cfg.TenantID)
		},
		BaseInterval: cfg.SnapshotInterval,
		Network:      cfg.Network,
		Scheduler:    cfg.Scheduler,
		Channel:      cfg.Channel,
		TopicID:      cfg.TenantID,
		OnChange:     cfg.OnChange,
	})
	if cfg.TicketID != "" {
		q.Ticket = New(Config[models.Ticket]{
			Name: "ticket",
			Fetch: func(ctx context.Context) (models.Ticket, error) {
				return cfg.API.GetTicket(ctx, cfg.TenantID, cfg.TicketID)
			},
			BaseInterval: cfg.TicketInterval,
			Network:      cfg.Network,
			Scheduler:    cfg.Scheduler,
			OnChange:     cfg.OnChange,
		})
	}
	return q
}

// EstimateFor derives the wait estimate for a ticket from the current
// snapshot; unknown while no snapshot has loaded.
func (q *Queue) EstimateFor(ticketID string) estimate.Estimate {
	snapshot, ok := q.Snapshot.Data()
	if !ok {
		return estimate.Unknown()
	}
	return estimate.ForTicket(snapshot, ticketID, q.avgServiceMinutes)
}

// EstimateNewJoiner derives the wait a walk-in would see right now.
func (q *Queue) EstimateNewJoiner() estimate.Estimate {
	snapshot, ok := q.Snapshot.Data()
	if !ok {
		return estimate.Unknown()
	}
	return estimate.ForNewJoiner(snapshot, q.avgServiceMinutes)
}

// StaffAvailable reports whether anyone is actively serving; pages render
// an "unavailable" state instead of an estimate when it is false and the
// queue is non-empty.
func (q *Queue) StaffAvailable() bool {
	snapshot, ok := q.Snapshot.Data()
	if !ok {
		return false
	}
	return estimate.ActiveServerCount(snapshot.InProgress()) > 0
}

func (q *Queue) SetVisible(visible bool) {
	q.Snapshot.SetVisible(visible)
	if q.Ticket != nil {
		q.Ticket.SetVisible(visible)
	}
}

func (q *Queue) Close() {
	q.Snapshot.Close()
	if q.Ticket != nil {
		q.Ticket.Close()
	}
}
