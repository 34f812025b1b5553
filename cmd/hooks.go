package cmd

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"ticket-inventory/internal/services"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// openPublishedTiers makes sure every tier of a published event has a ledger
// counter. Tiers that are already open keep their counters.
func openPublishedTiers(app core.App, catalog *services.CatalogService) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT tiers.id AS id FROM tiers INNER JOIN events ON events.id = tiers.event_id WHERE events.status = {:status}",
	).Bind(dbx.Params{"status": models.EventStatusPublish}).All(&records); err != nil {
		log.Printf("Error fetching published tiers: %v", err)
		return
	}

	opened := 0
	for _, record := range records {
		tierID := record["id"].String
		if tierID == "" {
			continue
		}
		if _, err := catalog.PublishTier(ctx, tierID); err != nil {
			slog.Error("Failed to open tier", "tier_id", tierID, "error", err)
			continue
		}
		opened++
	}

	log.Printf("Opened %d published tiers", opened)
}

func publishEventTiers(ctx context.Context, app core.App, catalog *services.CatalogService, eventID string) {
	tiers, err := app.FindAllRecords("tiers", dbx.HashExp{"event_id": eventID})
	if err != nil {
		slog.Error("Failed to list event tiers", "event_id", eventID, "error", err)
		return
	}

	for _, tier := range tiers {
		if _, err := catalog.PublishTier(ctx, tier.Id); err != nil {
			slog.Error("Failed to open tier", "tier_id", tier.Id, "event_id", eventID, "error", err)
		}
	}
}

func setupCatalogHooks(app core.App, catalog *services.CatalogService, tickets store.TicketStore) {
	// Publishing an event opens all of its tiers.
	app.OnRecordUpdateRequest("events").BindFunc(func(e *core.RecordRequestEvent) error {
		wasPublished := e.Record.Original().GetString("status") == models.EventStatusPublish

		if err := e.Next(); err != nil {
			return err
		}

		if !wasPublished && e.Record.GetString("status") == models.EventStatusPublish {
			slog.Info("Event published", "event_id", e.Record.Id)
			publishEventTiers(e.Request.Context(), app, catalog, e.Record.Id)
		}
		return nil
	})

	// A tier added to an already published event goes on sale immediately.
	app.OnRecordCreateRequest("tiers").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}

		_, err := catalog.PublishTier(e.Request.Context(), e.Record.Id)
		if err != nil && !errors.Is(err, status.ErrEventNotPublished) {
			slog.Error("Failed to open new tier", "tier_id", e.Record.Id, "error", err)
		}
		return nil
	})

	// Capacity only grows; growth on an open tier is applied to the ledger.
	app.OnRecordUpdateRequest("tiers").BindFunc(func(e *core.RecordRequestEvent) error {
		before := int64(e.Record.Original().GetInt("capacity"))
		after := int64(e.Record.GetInt("capacity"))
		if after < before {
			return apis.NewBadRequestError("Tier capacity can only be increased", nil)
		}
		if e.Record.GetString("event_id") != e.Record.Original().GetString("event_id") {
			return apis.NewBadRequestError("A tier cannot move to another event", nil)
		}

		if err := e.Next(); err != nil {
			return err
		}

		if after > before {
			_, err := catalog.ApplyCapacityIncrease(e.Request.Context(), e.Record.Id, after-before)
			switch {
			case errors.Is(err, status.ErrTierNotFound):
				// not on sale yet, the new capacity is read when it opens
			case err != nil:
				slog.Error("Failed to apply capacity increase",
					"tier_id", e.Record.Id,
					"delta", after-before,
					"error", err,
				)
			}
		}
		return nil
	})

	app.OnRecordDeleteRequest("tiers").BindFunc(func(e *core.RecordRequestEvent) error {
		issued, err := tickets.CountIssued(e.Request.Context(), e.Record.Id)
		if err != nil {
			return apis.NewInternalServerError("Cannot check issued tickets", err)
		}
		if issued > 0 {
			return apis.NewBadRequestError("Tier has issued tickets", nil)
		}
		return e.Next()
	})
}
