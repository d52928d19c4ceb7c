package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		// Regular buyers carry no role. Gate staff redeem tickets, admins
		// can additionally void them.
		collection.Fields.Add(&core.SelectField{
			Name:      "role",
			MaxSelect: 1,
			Values: []string{
				"staff",
				"admin",
			},
		})

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.RemoveByName("role")

		return app.Save(collection)
	})
}
