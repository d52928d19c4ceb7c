package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		orders, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return err
		}
		ticketTypes, err := app.FindCollectionByNameOrId("ticket_types")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("order_items")

		collection.Fields.Add(
			&core.RelationField{
				Name:          "order",
				Required:      true,
				CollectionId:  orders.Id,
				MaxSelect:     1,
				CascadeDelete: true,
			},
			&core.RelationField{
				Name:         "ticket_type",
				Required:     true,
				CollectionId: ticketTypes.Id,
				MaxSelect:    1,
			},
			&core.NumberField{
				Name:     "qty",
				Required: true,
				Min:      types.Pointer(1.0),
				OnlyInt:  true,
			},
			// Price snapshot taken at order time so later repricing of the
			// ticket type never changes what the buyer owes.
			&core.NumberField{
				Name:     "unit_price",
				Required: true,
				Min:      types.Pointer(0.0),
				OnlyInt:  true,
			},
			&core.NumberField{
				Name:     "subtotal",
				Required: true,
				Min:      types.Pointer(0.0),
				OnlyInt:  true,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("order_items")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
