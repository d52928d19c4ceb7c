package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"concert-ticketing/internal/status"
	"concert-ticketing/models"
	"concert-ticketing/monitoring"
	"concert-ticketing/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// errQuotaExhausted signals that issuing the batch would push quota_sold past
// quota_total. The settlement path treats it as "paid but unissued": the
// order stays PAID, the issuance marker stays false and the recovery sweep
// keeps retrying and reporting it.
var errQuotaExhausted = errors.New("ticket type quota exhausted")

type TicketService struct {
	app core.App
}

func NewTicketService(app core.App) *TicketService {
	return &TicketService{app: app}
}

// issueForOrder creates one ticket per paid unit of quantity and increments
// quota_sold, all inside the caller's transaction. Quota is pre-checked
// before any row is written: SQLite runs one writer at a time, so the
// pre-check and the guarded UPDATE below cannot disagree.
func (s *TicketService) issueForOrder(txApp core.App, order *core.Record) error {
	items, err := txApp.FindRecordsByFilter(collOrderItems,
		"order = {:orderId}", "created", 0, 0, dbx.Params{"orderId": order.Id})
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("order %s has no items to issue", order.Id)
	}

	// Quantities are aggregated per ticket type first: an order may carry
	// several lines for the same type, and each line would otherwise compare
	// against the same pre-increment quota_sold.
	need := make(map[string]int)
	for _, item := range items {
		need[item.GetString("ticket_type")] += item.GetInt("qty")
	}
	for ttID, qty := range need {
		tt, err := txApp.FindRecordById(collTicketTypes, ttID)
		if err != nil {
			return fmt.Errorf("load ticket type: %w", err)
		}
		if tt.GetInt("quota_sold")+qty > tt.GetInt("quota_total") {
			return fmt.Errorf("%w: ticket type %s", errQuotaExhausted, ttID)
		}
	}

	ticketsCol, err := txApp.FindCollectionByNameOrId(collTickets)
	if err != nil {
		return err
	}

	issued := 0
	for _, item := range items {
		qty := item.GetInt("qty")
		for i := 0; i < qty; i++ {
			code, err := utils.GenerateCode(10)
			if err != nil {
				return fmt.Errorf("generate redemption code: %w", err)
			}

			ticket := core.NewRecord(ticketsCol)
			ticket.Set("order", order.Id)
			ticket.Set("user", order.GetString("user"))
			ticket.Set("concert", order.GetString("concert"))
			ticket.Set("ticket_type", item.GetString("ticket_type"))
			ticket.Set("redemption_code", code)
			ticket.Set("status", string(models.TicketIssued))
			if err := txApp.Save(ticket); err != nil {
				return fmt.Errorf("save ticket: %w", err)
			}
			issued++
		}

		// Guarded increment: the WHERE clause is the oversell backstop. A
		// rejection here, after the batch pre-check passed, means outside
		// interference; the transaction must fail (not errQuotaExhausted,
		// which the settlement path commits) so the partial batch rolls back.
		res, err := txApp.DB().NewQuery(
			"UPDATE ticket_types SET quota_sold = quota_sold + {:qty} WHERE id = {:id} AND quota_sold + {:qty} <= quota_total",
		).Bind(dbx.Params{"qty": qty, "id": item.GetString("ticket_type")}).Execute()
		if err != nil {
			return fmt.Errorf("increment quota_sold: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows != 1 {
			return fmt.Errorf("quota increment rejected for ticket type %s", item.GetString("ticket_type"))
		}
	}

	monitoring.TrackTicketsIssued(issued)
	slog.Info("tickets issued", "orderId", order.Id, "count", issued)
	return nil
}

// GetTicket looks a ticket up by its redemption code.
func (s *TicketService) GetTicket(ctx context.Context, code string) (*models.Ticket, error) {
	record, err := s.findByCode(s.app, code)
	if err != nil {
		return nil, err
	}
	return ticketFromRecord(record), nil
}

// UseTicket redeems a ticket. Only ISSUED tickets can be used; the error for
// anything else reports the ticket's current status.
func (s *TicketService) UseTicket(ctx context.Context, code string) (*models.Ticket, error) {
	return s.transition(ctx, code, models.TicketUsed)
}

// VoidTicket administratively revokes a ticket.
func (s *TicketService) VoidTicket(ctx context.Context, code string) (*models.Ticket, error) {
	return s.transition(ctx, code, models.TicketVoid)
}

func (s *TicketService) transition(ctx context.Context, code string, to models.TicketStatus) (*models.Ticket, error) {
	var result *models.Ticket
	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := s.findByCode(txApp, code)
		if err != nil {
			return err
		}

		cur := models.TicketStatus(record.GetString("status"))
		if !models.CanTransitionTicket(cur, to) {
			return fmt.Errorf("%w: ticket is %s", status.ErrInvalidState, cur)
		}

		record.Set("status", string(to))
		if to == models.TicketUsed {
			record.Set("used_at", time.Now())
		}
		if err := txApp.Save(record); err != nil {
			return err
		}

		result = ticketFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackTicketRedemption(string(to))
	slog.Info("ticket transitioned", "code", code, "to", to)
	return result, nil
}

func (s *TicketService) findByCode(app core.App, code string) (*core.Record, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing redemption code", status.ErrInvalidInput)
	}
	record, err := app.FindFirstRecordByFilter(collTickets,
		"redemption_code = {:code}", dbx.Params{"code": code})
	if err != nil {
		return nil, fmt.Errorf("%w: ticket %s", status.ErrNotFound, code)
	}
	return record, nil
}
