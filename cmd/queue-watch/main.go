package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qms/queue-client/internal/api"
	"qms/queue-client/internal/config"
	"qms/queue-client/internal/estimate"
	"qms/queue-client/internal/metrics"
	"qms/queue-client/internal/models"
	"qms/queue-client/internal/netstatus"
	"qms/queue-client/internal/realtime"
	"qms/queue-client/internal/telemetry"
	"qms/queue-client/internal/watcher"
)

func main() {
	cfg := config.Load()
	if cfg.TenantID == "" {
		log.Fatal("QUEUE_TENANT_ID is required")
	}

	shutdownTelemetry := telemetry.Setup("queue-watch")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	tracker := netstatus.New()
	if effectiveType, ok := netstatus.ParseEffectiveType(cfg.NetworkOverride); ok {
		tracker = netstatus.NewStatic(effectiveType)
	}

	client, err := api.New(api.Config{
		Origin:   cfg.APIOrigin,
		Timeout:  cfg.RequestTimeout,
		Observer: tracker,
		OnUnauthorized: func() {
			log.Printf("session expired, re-authentication required")
		},
	})
	if err != nil {
		log.Fatalf("api client: %v", err)
	}

	var channel *realtime.Client
	if cfg.RealtimeEnabled {
		channel, err = realtime.New(client.Origin())
		if err != nil {
			log.Fatalf("realtime client: %v", err)
		}
	}

	changed := make(chan struct{}, 1)
	queueCfg := watcher.QueueConfig{
		API:               client,
		TenantID:          cfg.TenantID,
		TicketID:          cfg.TicketID,
		SnapshotInterval:  cfg.SnapshotInterval,
		TicketInterval:    cfg.TicketInterval,
		AvgServiceMinutes: cfg.AvgServiceMinutes,
		Network:           tracker,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	}
	if channel != nil {
		queueCfg.Channel = channel
	}
	queue := watcher.NewQueue(queueCfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("watching queue tenant=%s origin=%s realtime=%v", cfg.TenantID, cfg.APIOrigin, cfg.RealtimeEnabled)
	for {
		select {
		case <-changed:
			render(queue, cfg, tracker)
		case <-stop:
			queue.Close()
			if channel != nil {
				channel.Disconnect()
			}
			log.Printf("queue-watch stopped")
			return
		}
	}
}

func render(queue *watcher.Queue, cfg config.Config, tracker *netstatus.Tracker) {
	snapshot, ok := queue.Snapshot.Data()
	if !ok {
		if err := queue.Snapshot.Err(); err != nil {
			log.Printf("snapshot unavailable: %v", err)
		}
		return
	}

	waiting := snapshot.Waiting()
	inProgress := snapshot.InProgress()
	fmt.Printf("\n== queue %s  (%d waiting, %d in progress, network %s) ==\n",
		snapshot.TenantID, len(waiting), len(inProgress), tracker.EffectiveType())

	if !queue.StaffAvailable() && len(waiting) > 0 {
		fmt.Println("   estimates unavailable: no staff actively serving")
	}

	for _, ticket := range waiting {
		fmt.Printf("  %2d. %-20s %s\n", ticket.Position, ticket.CustomerName, describeWait(queue.EstimateFor(ticket.TicketID)))
	}
	for _, ticket := range inProgress {
		fmt.Printf("   >  %-20s with %s\n", ticket.CustomerName, barberLabel(ticket))
	}

	if cfg.TicketID != "" {
		if ticket, ok := queue.Ticket.Data(); ok {
			fmt.Printf("  your ticket: %s status=%s %s\n", ticket.TicketID, ticket.Status, describeWait(queue.EstimateFor(ticket.TicketID)))
		}
	}

	if joiner := queue.EstimateNewJoiner(); joiner.Valid {
		fmt.Printf("  walk-in wait: %s\n", describeWait(joiner))
	}
}

func describeWait(wait estimate.Estimate) string {
	if !wait.Valid {
		return "wait unknown"
	}
	if wait.Minutes == 0 {
		return "up next"
	}
	return fmt.Sprintf("~%d min", wait.Minutes)
}

func barberLabel(ticket models.Ticket) string {
	if ticket.BarberID == nil || *ticket.BarberID == "" {
		return "staff"
	}
	return "barber " + *ticket.BarberID
}
