package models

import "time"

// QueueSnapshot is the server's view of one tenant queue at a point in
// time. Ticket order is server-assigned; the client never reorders.
type QueueSnapshot struct {
	TenantID   string    `json:"tenant_id"`
	Tickets    []Ticket  `json:"tickets"`
	CapturedAt time.Time `json:"captured_at"`
}

func (s QueueSnapshot) Waiting() []Ticket {
	var out []Ticket
	for _, ticket := range s.Tickets {
		if ticket.Status == StatusWaiting {
			out = append(out, ticket)
		}
	}
	return out
}

func (s QueueSnapshot) InProgress() []Ticket {
	var out []Ticket
	for _, ticket := range s.Tickets {
		if ticket.Status == StatusInProgress {
			out = append(out, ticket)
		}
	}
	return out
}

func (s QueueSnapshot) Find(ticketID string) (Ticket, bool) {
	for _, ticket := range s.Tickets {
		if ticket.TicketID == ticketID {
			return ticket, true
		}
	}
	return Ticket{}, false
}
