package migrations

import (
	"ticket-inventory/internal/store"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Issued tickets and the scan log are plain tables rather than collections;
// status transitions need conditional updates the record API does not offer.
func init() {
	m.Register(func(app core.App) error {
		return store.Migrate(app.DB())
	}, func(app core.App) error {
		for _, stmt := range store.DropSchema {
			if _, err := app.DB().NewQuery(stmt).Execute(); err != nil {
				return err
			}
		}
		return nil
	})
}
