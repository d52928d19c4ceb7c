package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		orders, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "order",
				Required:     true,
				CollectionId: orders.Id,
				MaxSelect:    1,
			},
			&core.TextField{
				Name:     "provider",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"PENDING",
					"SETTLED",
					"FAILED",
					"CANCELLED",
					"EXPIRED",
				},
			},
			&core.TextField{
				Name: "gateway_token",
			},
			&core.TextField{
				Name: "redirect_url",
			},
			&core.TextField{
				Name: "last_transaction_status",
			},
			// Raw webhook payload kept for reconciliation and audit.
			&core.JSONField{
				Name: "last_notification",
			},
			&core.BoolField{
				Name: "tickets_issued",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		// One payment per order makes the settlement upsert race-free.
		collection.AddIndex("idx_payments_order", true, "`order`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
