package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/api/validators"
	"github.com/angelmondragon/eventrentals-backend/internal/inventory"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

type itemCreateRequest struct {
	SKU          string  `json:"sku" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	InitialStock int     `json:"initial_stock" validate:"gte=0"`
	DailyRate    string  `json:"daily_rate" validate:"omitempty,money"`
}

func (r itemCreateRequest) toInput() (inventory.CreateItemInput, error) {
	cents, err := validators.ParseMoneyCents(r.DailyRate)
	if err != nil {
		return inventory.CreateItemInput{}, err
	}
	return inventory.CreateItemInput{
		SKU:            strings.TrimSpace(r.SKU),
		Name:           validators.SanitizeString(r.Name, 200),
		Description:    r.Description,
		InitialStock:   r.InitialStock,
		DailyRateCents: cents,
	}, nil
}

type itemAdjustRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=in out"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note" validate:"max=500"`
}

// InventoryCreateItem registers a catalog item and records its opening stock.
func InventoryCreateItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload itemCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.CreateItem(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, itemResponseFromModel(item))
	}
}

func InventoryListItems(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListItems(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pageResponse[itemResponse]{
			Items:      make([]itemResponse, 0, len(list.Items)),
			NextCursor: list.NextCursor,
		}
		for i := range list.Items {
			out.Items = append(out.Items, itemResponseFromModel(&list.Items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func InventoryItemDetail(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemResponseFromModel(item))
	}
}

// InventoryAdjust applies a manual in/out correction through the ledger.
func InventoryAdjust(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload itemAdjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseMovementKind(payload.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
			return
		}

		movement, err := svc.Adjust(r.Context(), actor, id, inventory.AdjustInput{
			Kind:     kind,
			Quantity: payload.Quantity,
			Note:     payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, movementResponseFromModel(movement))
	}
}

func InventoryMovements(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMovements(r.Context(), id, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pageResponse[movementResponse]{
			Items:      movementResponses(list.Movements),
			NextCursor: list.NextCursor,
		})
	}
}

// InventoryReconcile compares an item's stock with its movement history.
func InventoryReconcile(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		id, err := validators.PathUUID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		drift, err := svc.Reconcile(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"item_id":  drift.ItemID,
			"stock":    drift.Stock,
			"expected": drift.Expected,
			"delta":    drift.Delta,
			"in_sync":  drift.InSync(),
		})
	}
}
