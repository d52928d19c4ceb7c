package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		concerts, err := app.FindCollectionByNameOrId("concerts")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("orders")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "user",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "concert",
				Required:     true,
				CollectionId: concerts.Id,
				MaxSelect:    1,
			},
			&core.TextField{
				Name:     "external_ref",
				Required: true,
			},
			&core.NumberField{
				Name:     "gross_amount",
				Required: true,
				Min:      types.Pointer(0.0),
				OnlyInt:  true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"PENDING",
					"AWAITING_PAYMENT",
					"PAID",
					"CANCELLED",
					"EXPIRED",
					"REFUNDED",
				},
			},
			&core.DateField{
				Name:     "expires_at",
				Required: true,
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

		// The payment provider resolves orders by this reference.
		collection.AddIndex("idx_orders_external_ref", true, "external_ref", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
