package models

import "time"

type Ticket struct {
	TicketID          string    `json:"ticket_id"`
	TicketNumber      string    `json:"ticket_number,omitempty"`
	TenantID          string    `json:"tenant_id,omitempty"`
	CustomerName      string    `json:"customer_name"`
	Status            string    `json:"status"`
	Position          int       `json:"position,omitempty"`
	BarberID          *string   `json:"barber_id,omitempty"`
	PreferredBarberID *string   `json:"preferred_barber_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Terminal reports whether the ticket can no longer change state.
func (t Ticket) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusCancelled
}
