package services

import (
	"concert-ticketing/models"

	"github.com/pocketbase/pocketbase/core"
)

// Collection names. The schema lives in migrations/.
const (
	collOrders      = "orders"
	collOrderItems  = "order_items"
	collPayments    = "payments"
	collTickets     = "tickets"
	collTicketTypes = "ticket_types"
	collConcerts    = "concerts"
)

func orderFromRecord(r *core.Record) *models.Order {
	return &models.Order{
		ID:          r.Id,
		UserID:      r.GetString("user"),
		ConcertID:   r.GetString("concert"),
		ExternalRef: r.GetString("external_ref"),
		GrossAmount: int64(r.GetFloat("gross_amount")),
		Status:      models.OrderStatus(r.GetString("status")),
		ExpiresAt:   r.GetDateTime("expires_at").Time(),
		CreatedAt:   r.GetDateTime("created").Time(),
	}
}

func orderItemFromRecord(r *core.Record) models.OrderItem {
	return models.OrderItem{
		ID:           r.Id,
		OrderID:      r.GetString("order"),
		TicketTypeID: r.GetString("ticket_type"),
		Qty:          r.GetInt("qty"),
		UnitPrice:    int64(r.GetFloat("unit_price")),
		Subtotal:     int64(r.GetFloat("subtotal")),
	}
}

func paymentFromRecord(r *core.Record) *models.Payment {
	return &models.Payment{
		ID:                    r.Id,
		OrderID:               r.GetString("order"),
		Provider:              r.GetString("provider"),
		Status:                models.PaymentStatus(r.GetString("status")),
		GatewayToken:          r.GetString("gateway_token"),
		RedirectURL:           r.GetString("redirect_url"),
		LastTransactionStatus: r.GetString("last_transaction_status"),
		TicketsIssued:         r.GetBool("tickets_issued"),
		CreatedAt:             r.GetDateTime("created").Time(),
		UpdatedAt:             r.GetDateTime("updated").Time(),
	}
}

func concertFromRecord(r *core.Record) *models.Concert {
	return &models.Concert{
		ID:       r.Id,
		Name:     r.GetString("name"),
		Venue:    r.GetString("venue"),
		StartsAt: r.GetDateTime("starts_at").Time(),
	}
}

func ticketTypeFromRecord(r *core.Record) *models.TicketType {
	return &models.TicketType{
		ID:           r.Id,
		ConcertID:    r.GetString("concert"),
		Name:         r.GetString("name"),
		Price:        int64(r.GetFloat("price")),
		QuotaTotal:   r.GetInt("quota_total"),
		QuotaSold:    r.GetInt("quota_sold"),
		SalesStartAt: r.GetDateTime("sales_start_at").Time(),
		SalesEndAt:   r.GetDateTime("sales_end_at").Time(),
	}
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:             r.Id,
		OrderID:        r.GetString("order"),
		UserID:         r.GetString("user"),
		ConcertID:      r.GetString("concert"),
		TicketTypeID:   r.GetString("ticket_type"),
		RedemptionCode: r.GetString("redemption_code"),
		Status:         models.TicketStatus(r.GetString("status")),
		IssuedAt:       r.GetDateTime("created").Time(),
	}
	if usedAt := r.GetDateTime("used_at"); !usedAt.IsZero() {
		ts := usedAt.Time()
		t.UsedAt = &ts
	}
	return t
}
