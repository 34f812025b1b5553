package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("q5x1b6whizo4zzo")
		if err != nil {
			return err
		}

		// add
		collection.Fields.Add(&core.FileField{
			Name:      "image_url",
			MaxSelect: 1,
			MaxSize:   5242880,
			MimeTypes: []string{"image/jpeg", "image/png", "image/webp"},
		})

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("q5x1b6whizo4zzo")
		if err != nil {
			return err
		}

		// remove
		collection.Fields.RemoveByName("image_url")

		return app.Save(collection)
	})
}
