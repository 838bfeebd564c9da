package handler

import (
	"net/http"

	"campsite/internal/reservations/errors"
	"campsite/internal/reservations/service"
	apperrors "campsite/pkg/errors"
	httputil "campsite/pkg/http"
	"campsite/pkg/logger"
	"campsite/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// CancelResult is the body of every successful cancellation.
const CancelResult = "SUCCESS"

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

func (h *ReservationHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	startFrom, err := parseDateParam(query.Get("startFrom"))
	if err != nil {
		h.writeError(w, "Search", apperrors.InvalidInput("invalid startFrom parameter, expected YYYY-MM-DD"))
		return
	}
	endTo, err := parseDateParam(query.Get("endTo"))
	if err != nil {
		h.writeError(w, "Search", apperrors.InvalidInput("invalid endTo parameter, expected YYYY-MM-DD"))
		return
	}
	startFrom, endTo = defaultWindow(startFrom, endTo)

	freeRanges, err := h.service.Search(r.Context(), startFrom, endTo)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	if err := httputil.WriteSuccess(w, freeRanges); err != nil {
		h.log.Error("failed to write success response", "handler", "Search", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	startFrom, err := parseDateParam(query.Get("startFrom"))
	if err != nil {
		h.writeError(w, "Reserve", apperrors.InvalidInput("invalid startFrom parameter, expected YYYY-MM-DD"))
		return
	}
	endTo, err := parseDateParam(query.Get("endTo"))
	if err != nil {
		h.writeError(w, "Reserve", apperrors.InvalidInput("invalid endTo parameter, expected YYYY-MM-DD"))
		return
	}
	startFrom, endTo = defaultWindow(startFrom, endTo)

	id, err := h.service.Reserve(r.Context(), query.Get("userName"), query.Get("email"), startFrom, endTo)
	if err != nil {
		h.writeOutcome(w, "Reserve", err)
		return
	}

	if err := httputil.WriteSuccess(w, id); err != nil {
		h.log.Error("failed to write success response", "handler", "Reserve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	query := r.URL.Query()

	// Updates never default the dates: the caller must say what range the
	// reservation moves to.
	startFrom, err := parseDateParam(query.Get("startFrom"))
	if err != nil {
		h.writeError(w, "Update", apperrors.InvalidInput("invalid startFrom parameter, expected YYYY-MM-DD"))
		return
	}
	endTo, err := parseDateParam(query.Get("endTo"))
	if err != nil {
		h.writeError(w, "Update", apperrors.InvalidInput("invalid endTo parameter, expected YYYY-MM-DD"))
		return
	}

	newID, err := h.service.Update(r.Context(), id, query.Get("email"), startFrom, endTo)
	if err != nil {
		h.writeOutcome(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, newID); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	email := r.URL.Query().Get("email")

	if err := h.service.Cancel(r.Context(), id, email); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, CancelResult); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	reservation, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/search", h.Search)
	router.PUT("/api/v1/reserve", h.Reserve)
	router.PUT("/api/v1/update/:id", h.Update)
	router.DELETE("/api/v1/cancel/:id", h.Cancel)
	router.GET("/api/v1/reservations/id/:id", h.GetByID)
}

// writeOutcome renders write results: a business rejection is a normal
// answer and goes out as 200 with its exact message, anything else is a
// real error.
func (h *ReservationHandler) writeOutcome(w http.ResponseWriter, handlerName string, err error) {
	if rejection, ok := errors.AsNotAvailable(err); ok {
		if writeErr := httputil.WriteSuccess(w, rejection.Error()); writeErr != nil {
			h.log.Error("failed to write success response", "handler", handlerName, "operation", "WriteSuccess", "error", writeErr)
		}
		return
	}
	h.writeError(w, handlerName, err)
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func parseDateParam(value string) (model.Date, error) {
	if value == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(value)
}

// defaultWindow fills missing dates with the bookable window: tomorrow
// through one month ahead.
func defaultWindow(startFrom, endTo model.Date) (model.Date, model.Date) {
	if startFrom.IsZero() {
		startFrom = model.Today().AddDays(1)
	}
	if endTo.IsZero() {
		endTo = model.Today().AddMonths(1)
	}
	return startFrom, endTo
}
