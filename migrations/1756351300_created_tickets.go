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
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}
		concerts, err := app.FindCollectionByNameOrId("concerts")
		if err != nil {
			return err
		}
		ticketTypes, err := app.FindCollectionByNameOrId("ticket_types")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "order",
				Required:     true,
				CollectionId: orders.Id,
				MaxSelect:    1,
			},
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
			&core.RelationField{
				Name:         "ticket_type",
				Required:     true,
				CollectionId: ticketTypes.Id,
				MaxSelect:    1,
			},
			&core.TextField{
				Name:     "redemption_code",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"ISSUED",
					"USED",
					"VOID",
				},
			},
			&core.DateField{
				Name: "used_at",
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

		// Gate staff scan tickets by code, so lookups must be unique.
		collection.AddIndex("idx_tickets_redemption_code", true, "redemption_code", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
