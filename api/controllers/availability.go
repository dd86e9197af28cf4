package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/api/validators"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

// AvailabilityReader is the read side of the availability calculator.
// Handlers pass a nil transaction, so answers are advisory.
type AvailabilityReader interface {
	Available(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, window availability.Range, excl availability.Exclusions) (int, error)
	Check(ctx context.Context, tx *gorm.DB, lines []availability.Line, window availability.Range, excl availability.Exclusions) ([]availability.LineResult, error)
}

type availabilityCheckRequest struct {
	DateStart time.Time     `json:"date_start" validate:"required"`
	DateEnd   time.Time     `json:"date_end" validate:"required,gtefield=DateStart"`
	Lines     []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type availabilityResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	DateStart time.Time `json:"date_start"`
	DateEnd   time.Time `json:"date_end"`
	Available int       `json:"available"`
}

type availabilityCheckResponse struct {
	OK    bool                      `json:"ok"`
	Lines []availability.LineResult `json:"lines"`
}

// AvailabilityGet answers how many units of one item are free in [start, end).
func AvailabilityGet(calc AvailabilityReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability unavailable"))
			return
		}
		itemID, err := validators.ParseQueryUUID(r, "item_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if itemID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "item_id is required"))
			return
		}
		start, err := validators.ParseQueryTime(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryTime(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if start == nil || end == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "start and end are required"))
			return
		}
		window, err := availability.NewRange(*start, *end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		free, err := calc.Available(r.Context(), nil, *itemID, window, availability.Exclusions{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availabilityResponse{
			ItemID:    *itemID,
			DateStart: window.Start,
			DateEnd:   window.End,
			Available: free,
		})
	}
}

// AvailabilityCheck evaluates a whole line set without holding anything.
func AvailabilityCheck(calc AvailabilityReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability unavailable"))
			return
		}
		var payload availabilityCheckRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := availability.NewRange(payload.DateStart, payload.DateEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := calc.Check(r.Context(), nil, toLines(payload.Lines), window, availability.Exclusions{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availabilityCheckResponse{
			OK:    len(availability.Shortfalls(results)) == 0,
			Lines: results,
		})
	}
}
