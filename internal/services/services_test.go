package services

import (
	"fmt"
	"testing"
	"time"

	"concert-ticketing/config"
	_ "concert-ticketing/migrations"
	"concert-ticketing/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/require"
)

// newTestApp returns an isolated app with the project collections applied.
func newTestApp(t *testing.T) *tests.TestApp {
	t.Helper()

	// tests.NewTestApp runs core.SystemMigrations and core.AppMigrations
	// (populated via the blank concert-ticketing/migrations import).
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	return app
}

func testConfig() *config.Config {
	return &config.Config{
		OrderTTL:              15 * time.Minute,
		ExpirySweepEvery:      time.Minute,
		RecoverySweepEvery:    time.Minute,
		PaymentStatusCacheTTL: time.Second,
	}
}

func createRecord(t *testing.T, app core.App, collection string, fields map[string]any) *core.Record {
	t.Helper()

	col, err := app.FindCollectionByNameOrId(collection)
	require.NoError(t, err)

	record := core.NewRecord(col)
	for name, value := range fields {
		record.Set(name, value)
	}
	require.NoError(t, app.Save(record))
	return record
}

func seedUser(t *testing.T, app core.App) string {
	t.Helper()

	col, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)

	user := core.NewRecord(col)
	user.SetEmail(fmt.Sprintf("buyer-%d@example.test", time.Now().UnixNano()))
	user.SetRandomPassword()
	require.NoError(t, app.Save(user))
	return user.Id
}

func seedConcert(t *testing.T, app core.App) string {
	return createRecord(t, app, collConcerts, map[string]any{
		"name":      "Midnight Run Tour",
		"venue":     "Main Hall",
		"starts_at": time.Now().Add(72 * time.Hour),
	}).Id
}

func seedTicketType(t *testing.T, app core.App, concertID string, price float64, quotaTotal int) string {
	return createRecord(t, app, collTicketTypes, map[string]any{
		"concert":        concertID,
		"name":           "General",
		"price":          price,
		"quota_total":    quotaTotal,
		"quota_sold":     0,
		"sales_start_at": time.Now().Add(-time.Hour),
		"sales_end_at":   time.Now().Add(24 * time.Hour),
	}).Id
}

func seedOrder(t *testing.T, app core.App, userID, concertID, externalRef string, st models.OrderStatus) *core.Record {
	return createRecord(t, app, collOrders, map[string]any{
		"user":         userID,
		"concert":      concertID,
		"external_ref": externalRef,
		"gross_amount": 1000,
		"status":       string(st),
		"expires_at":   time.Now().Add(15 * time.Minute),
	})
}
