package migrations

import (
	"ticket-inventory/models"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("events", "q5x1b6whizo4zzo")

		collection.ListRule = types.Pointer("status = 'publish'")
		collection.ViewRule = types.Pointer("status = 'publish'")

		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.DateField{Name: "start_at"},
			&core.DateField{Name: "end_at"},
			&core.DateField{Name: "entance_at"},
			&core.SelectField{
				Name:      "status",
				MaxSelect: 1,
				Values:    []string{models.EventStatusPublish, models.EventStatusUnpublish},
			},
			&core.TextField{Name: "description"},
			&core.TextField{Name: "location"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("q5x1b6whizo4zzo")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
