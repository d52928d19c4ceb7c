package models

import (
	"time"
)

type TicketStatus string

const (
	TicketIssued TicketStatus = "ISSUED"
	TicketUsed   TicketStatus = "USED"
	TicketVoid   TicketStatus = "VOID"
)

var ticketTransitions = map[TicketStatus]map[TicketStatus]bool{
	TicketIssued: {
		TicketUsed: true,
		TicketVoid: true,
	},
	TicketUsed: {},
	TicketVoid: {},
}

func CanTransitionTicket(from, to TicketStatus) bool {
	return ticketTransitions[from][to]
}

type Ticket struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"order_id"`
	UserID         string       `json:"user_id"`
	ConcertID      string       `json:"concert_id"`
	TicketTypeID   string       `json:"ticket_type_id"`
	RedemptionCode string       `json:"redemption_code"`
	Status         TicketStatus `json:"status"`
	IssuedAt       time.Time    `json:"issued_at"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
}

type TicketType struct {
	ID           string    `json:"id"`
	ConcertID    string    `json:"concert_id"`
	Name         string    `json:"name"`
	Price        int64     `json:"price"`
	QuotaTotal   int       `json:"quota_total"`
	QuotaSold    int       `json:"quota_sold"`
	SalesStartAt time.Time `json:"sales_start_at"`
	SalesEndAt   time.Time `json:"sales_end_at"`
}

type Concert struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Venue    string    `json:"venue"`
	StartsAt time.Time `json:"starts_at"`
}
