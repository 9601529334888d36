package estimate

import "qms/queue-client/internal/models"

const (
	// BucketMinutes is the display granularity for estimates.
	BucketMinutes = 5
	// FloorMinutes is the minimum displayed wait while anyone is ahead.
	FloorMinutes = 5
)

// Estimate is a derived wait time. Valid=false means "insufficient data",
// which is distinct from a valid zero-minute ("now") estimate.
type Estimate struct {
	Minutes int
	Valid   bool
}

func Unknown() Estimate {
	return Estimate{}
}

func Minutes(m int) Estimate {
	if m < 0 {
		m = 0
	}
	return Estimate{Minutes: m, Valid: true}
}

// ActiveServerCount counts distinct non-null barber ids among in-progress
// tickets. Callers that need a zero-staff "unavailable" state must check
// this directly; Wait clamps it to 1 to avoid dividing by zero.
func ActiveServerCount(inProgress []models.Ticket) int {
	seen := map[string]bool{}
	for _, ticket := range inProgress {
		if ticket.BarberID != nil && *ticket.BarberID != "" {
			seen[*ticket.BarberID] = true
		}
	}
	return len(seen)
}

// Wait estimates the wait in minutes for a customer with peopleAhead
// waiting tickets ahead of them. Order is fixed: divide, ceil, round to
// bucket, clamp to floor.
func Wait(peopleAhead int, inProgress []models.Ticket, avgServiceMinutes int) Estimate {
	if peopleAhead <= 0 {
		return Minutes(0)
	}
	if avgServiceMinutes <= 0 {
		return Unknown()
	}

	servers := ActiveServerCount(inProgress)
	if servers < 1 {
		servers = 1
	}

	minutes := (peopleAhead*avgServiceMinutes + servers - 1) / servers
	minutes = roundToBucket(minutes)
	if minutes < FloorMinutes {
		minutes = FloorMinutes
	}
	return Minutes(minutes)
}

// ForTicket estimates the wait for an existing waiting ticket in the
// snapshot. Unknown when the ticket is not present.
func ForTicket(snapshot models.QueueSnapshot, ticketID string, avgServiceMinutes int) Estimate {
	subject, ok := snapshot.Find(ticketID)
	if !ok {
		return Unknown()
	}
	if subject.Status != models.StatusWaiting {
		return Minutes(0)
	}

	ahead := 0
	for _, ticket := range snapshot.Waiting() {
		if ticket.TicketID != subject.TicketID && ticket.Position < subject.Position {
			ahead++
		}
	}
	return Wait(ahead, snapshot.InProgress(), avgServiceMinutes)
}

// ForNewJoiner estimates the wait a customer would see before joining:
// everyone currently waiting is ahead of them.
func ForNewJoiner(snapshot models.QueueSnapshot, avgServiceMinutes int) Estimate {
	return Wait(len(snapshot.Waiting()), snapshot.InProgress(), avgServiceMinutes)
}

func roundToBucket(minutes int) int {
	return (minutes + BucketMinutes/2) / BucketMinutes * BucketMinutes
}
