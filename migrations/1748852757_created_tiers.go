package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tiers", "bhlulsy1qhohb7u")

		collection.ListRule = types.Pointer("event_id.status = 'publish'")
		collection.ViewRule = types.Pointer("event_id.status = 'publish'")

		// capacity is the configured total; sold counts live in the ledger
		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.NumberField{Name: "capacity", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.SelectField{
				Name:      "type",
				MaxSelect: 1,
				Values:    []string{"seat", "stand"},
			},
			&core.RelationField{
				Name:          "event_id",
				CollectionId:  "q5x1b6whizo4zzo",
				MaxSelect:     1,
				Required:      true,
				CascadeDelete: false,
			},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tiers_event_id", false, "`event_id`", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bhlulsy1qhohb7u")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
