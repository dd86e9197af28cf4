package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/api/responses"
	"github.com/angelmondragon/eventrentals-backend/api/validators"
	"github.com/angelmondragon/eventrentals-backend/internal/reservations"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
	"github.com/angelmondragon/eventrentals-backend/pkg/logger"
)

type reservationSubmitRequest struct {
	RequesterID  string          `json:"requester_id" validate:"omitempty,uuid"`
	ServiceLabel string          `json:"service_label" validate:"required,max=200"`
	DateStart    time.Time       `json:"date_start" validate:"required"`
	DateEnd      time.Time       `json:"date_end" validate:"required,gtefield=DateStart"`
	Lines        []lineRequest   `json:"lines" validate:"required,min=1,dive"`
	Metadata     json.RawMessage `json:"metadata"`
}

func (r reservationSubmitRequest) toInput() reservations.SubmitInput {
	var requester uuid.UUID
	if r.RequesterID != "" {
		requester, _ = uuid.Parse(r.RequesterID)
	}
	return reservations.SubmitInput{
		RequesterID:  requester,
		ServiceLabel: validators.SanitizeString(r.ServiceLabel, 200),
		DateStart:    r.DateStart,
		DateEnd:      r.DateEnd,
		Lines:        toLines(r.Lines),
		Metadata:     r.Metadata,
	}
}

type reservationCancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type confirmResponse struct {
	Reservation   reservationResponse   `json:"reservation"`
	CalendarEvent calendarEventResponse `json:"calendar_event"`
}

// ReservationSubmit stores a pending booking request after a soft availability check.
func ReservationSubmit(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reservationSubmitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Submit(r.Context(), actor, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, reservationResponseFromModel(created))
	}
}

// ReservationConfirm materializes a pending reservation into the calendar.
func ReservationConfirm(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmResponse{
			Reservation:   reservationResponseFromModel(result.Reservation),
			CalendarEvent: calendarEventResponseFromModel(result.CalendarEvent),
		})
	}
}

// ReservationCancel moves a pending reservation to cancelled. The body is optional.
func ReservationCancel(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reservationCancelRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		cancelled, err := svc.Cancel(r.Context(), actor, id, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservationResponseFromModel(cancelled))
	}
}

// ReservationDetail returns one reservation visible to the caller.
func ReservationDetail(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.PathUUID(r, "reservationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservationResponseFromModel(reservation))
	}
}

// ReservationList pages reservations. Non-privileged callers only see their own.
func ReservationList(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
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
		requester, err := validators.ParseQueryUUID(r, "requester_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := reservations.ListFilter{RequesterID: requester, Page: page}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseReservationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Status = &status
		}

		list, err := svc.List(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pageResponse[reservationResponse]{
			Items:      make([]reservationResponse, 0, len(list.Reservations)),
			NextCursor: list.NextCursor,
		}
		for i := range list.Reservations {
			out.Items = append(out.Items, reservationResponseFromModel(&list.Reservations[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
