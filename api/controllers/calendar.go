package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/api/validators"
	"github.com/angelmondragon/eventrentals-backend/internal/availability"
	"github.com/angelmondragon/eventrentals-backend/internal/calendar"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

type calendarBookRequest struct {
	RequesterID string        `json:"requester_id" validate:"omitempty,uuid"`
	DateStart   time.Time     `json:"date_start" validate:"required"`
	DateEnd     time.Time     `json:"date_end" validate:"required,gtefield=DateStart"`
	Description string        `json:"description" validate:"max=1000"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

type calendarEditRequest struct {
	DateStart   time.Time     `json:"date_start" validate:"required"`
	DateEnd     time.Time     `json:"date_end" validate:"required,gtefield=DateStart"`
	Description *string       `json:"description" validate:"omitempty,max=1000"`
	Lines       []lineRequest `json:"lines" validate:"dive"`
}

type calendarFinalizeRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// CalendarBook materializes a line set directly, without a reservation.
func CalendarBook(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload calendarBookRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := availability.NewRange(payload.DateStart, payload.DateEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requester := actor.UserID
		if payload.RequesterID != "" {
			requester, _ = uuid.Parse(payload.RequesterID)
		}

		event, err := svc.Book(r.Context(), actor, calendar.BookInput{
			RequesterID: requester,
			Window:      window,
			Description: strings.TrimSpace(payload.Description),
			Lines:       toLines(payload.Lines),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, calendarEventResponseFromModel(event))
	}
}

// CalendarEdit replaces an event's window and lines, reconciling stock.
func CalendarEdit(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "calendarId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload calendarEditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := availability.NewRange(payload.DateStart, payload.DateEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Edit(r.Context(), actor, id, calendar.EditInput{
			Window:      window,
			Description: payload.Description,
			Lines:       toLines(payload.Lines),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, calendarEventResponseFromModel(event))
	}
}

// CalendarFinalize returns an event's stock and removes it from the calendar.
func CalendarFinalize(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "calendarId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload calendarFinalizeRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Finalize(r.Context(), actor, id, validators.SanitizeString(payload.Note, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"calendar_id":    result.CalendarID,
			"reservation_id": result.ReservationID,
			"returned":       movementResponses(result.Returned),
		})
	}
}

func CalendarDetail(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "calendarId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, calendarEventResponseFromModel(event))
	}
}

// CalendarList pages events overlapping the optional [from, to) window.
func CalendarList(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requester, err := validators.ParseQueryUUID(r, "requester_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), actor, calendar.ListFilter{
			From:        from,
			To:          to,
			RequesterID: requester,
			Page:        page,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pageResponse[calendarEventResponse]{
			Items:      make([]calendarEventResponse, 0, len(list.Events)),
			NextCursor: list.NextCursor,
		}
		for i := range list.Events {
			out.Items = append(out.Items, calendarEventResponseFromModel(&list.Events[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// CalendarAudit lists the confirm/finalize trail for an event, oldest first.
func CalendarAudit(svc calendar.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "calendar service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "calendarId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.Audit(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]auditEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, auditEntryResponseFromModel(&entries[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
