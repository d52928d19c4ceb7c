package services

import (
	"context"
	"fmt"
	"time"

	"concert-ticketing/internal/status"
	"concert-ticketing/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// CatalogService serves the public browse surface: upcoming concerts and
// their ticket types. Read-only.
type CatalogService struct {
	app core.App
}

func NewCatalogService(app core.App) *CatalogService {
	return &CatalogService{app: app}
}

// ListConcerts returns concerts that have not started yet, soonest first.
func (s *CatalogService) ListConcerts(ctx context.Context) ([]*models.Concert, error) {
	records, err := s.app.FindRecordsByFilter(collConcerts,
		"starts_at > {:now}", "starts_at", 100, 0,
		dbx.Params{"now": time.Now().UTC().Format("2006-01-02 15:04:05.000Z")})
	if err != nil {
		return nil, err
	}

	concerts := make([]*models.Concert, 0, len(records))
	for _, r := range records {
		concerts = append(concerts, concertFromRecord(r))
	}
	return concerts, nil
}

// GetConcert returns one concert with its ticket types and their remaining
// availability.
func (s *CatalogService) GetConcert(ctx context.Context, concertID string) (*models.Concert, []*models.TicketType, error) {
	record, err := s.app.FindRecordById(collConcerts, concertID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: concert %s", status.ErrNotFound, concertID)
	}

	typeRecords, err := s.app.FindRecordsByFilter(collTicketTypes,
		"concert = {:concertId}", "price", 0, 0, dbx.Params{"concertId": concertID})
	if err != nil {
		return nil, nil, err
	}

	types := make([]*models.TicketType, 0, len(typeRecords))
	for _, tr := range typeRecords {
		types = append(types, ticketTypeFromRecord(tr))
	}
	return concertFromRecord(record), types, nil
}
