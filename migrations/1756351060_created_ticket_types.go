package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		concerts, err := app.FindCollectionByNameOrId("concerts")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("ticket_types")

		collection.Fields.Add(
			&core.RelationField{
				Name:         "concert",
				Required:     true,
				CollectionId: concerts.Id,
				MaxSelect:    1,
			},
			&core.TextField{
				Name:     "name",
				Required: true,
			},
			&core.NumberField{
				Name:     "price",
				Required: true,
				Min:      types.Pointer(0.0),
				OnlyInt:  true,
			},
			&core.NumberField{
				Name:     "quota_total",
				Required: true,
				Min:      types.Pointer(0.0),
				OnlyInt:  true,
			},
			// quota_sold never exceeds quota_total: the issuance path
			// increments it with a guarded UPDATE.
			&core.NumberField{
				Name:    "quota_sold",
				Min:     types.Pointer(0.0),
				OnlyInt: true,
			},
			&core.DateField{
				Name:     "sales_start_at",
				Required: true,
			},
			&core.DateField{
				Name:     "sales_end_at",
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

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("ticket_types")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
