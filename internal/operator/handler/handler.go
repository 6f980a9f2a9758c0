// Package handler exposes the operator aggregate over HTTP, including its
// driver and vehicle child collections.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
	"fleetledger/internal/operator"
	"fleetledger/pkg/platform/httputil"
)

// Handler wires operator endpoints onto the message bus.
type Handler struct {
	bus    *bus.Bus
	logger *slog.Logger
}

func New(b *bus.Bus, logger *slog.Logger) *Handler {
	return &Handler{bus: b, logger: logger}
}

// Register mounts operator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/operators", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/count", h.HandleCount)
		r.Route("/{streamID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleModify)
			r.Delete("/", h.HandleDelete)
			r.Post("/drivers", h.childCreator(operator.DriverTag))
			r.Put("/drivers/{childID}", h.childModifier(operator.DriverTag))
			r.Post("/vehicles", h.childCreator(operator.VehicleTag))
			r.Put("/vehicles/{childID}", h.childModifier(operator.VehicleTag))
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	data, ok := httputil.ReadRawJSON(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewCreateCommand(ctx, operator.Tag, data))
}

func (h *Handler) HandleModify(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	data, ok := httputil.ReadRawJSON(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewModifyCommand(ctx, operator.Tag, streamID, data))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewDeleteCommand(ctx, operator.Tag, streamID))
}

// childCreator builds the POST handler for one child collection.
func (h *Handler) childCreator(childTag string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamID, ok := h.streamID(w, r)
		if !ok {
			return
		}
		data, ok := httputil.ReadRawJSON(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		h.writeCommand(w, r, messages.NewCreateChildCommand(ctx, operator.Tag, streamID, childTag, data))
	}
}

// childModifier builds the PUT handler for one child collection.
func (h *Handler) childModifier(childTag string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamID, ok := h.streamID(w, r)
		if !ok {
			return
		}
		childID, err := strconv.ParseInt(chi.URLParam(r, "childID"), 10, 64)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, result.FailedCommand(result.BadRequest, "child id must be an integer"))
			return
		}
		data, ok := httputil.ReadRawJSON(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		h.writeCommand(w, r, messages.NewModifyChildCommand(ctx, operator.Tag, streamID, childID, childTag, data))
	}
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := bus.RequestAs[result.QueryCountResult](ctx, h.bus, messages.NewGetCountQuery(ctx, operator.Tag))
	if err != nil {
		h.dispatchError(w, r, err)
		return
	}
	httputil.WriteJSON(w, res.ResultType.HTTPStatus(), res)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := messages.NewGetListQuery(ctx, operator.Tag, paging.FromQuery(r.URL.Query()))
	res, err := bus.RequestAs[result.QueryResultList[*operator.Operator]](ctx, h.bus, q)
	if err != nil {
		h.dispatchError(w, r, err)
		return
	}
	httputil.WriteJSON(w, res.ResultType.HTTPStatus(), res)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	res, err := bus.RequestAs[result.QueryResult[*operator.Operator]](ctx, h.bus, messages.NewGetSingleQuery(ctx, operator.Tag, streamID))
	if err != nil {
		h.dispatchError(w, r, err)
		return
	}
	httputil.WriteJSON(w, res.ResultType.HTTPStatus(), res)
}

func (h *Handler) writeCommand(w http.ResponseWriter, r *http.Request, cmd bus.Request) {
	res, err := bus.RequestAs[result.CommandResult](r.Context(), h.bus, cmd)
	if err != nil {
		h.dispatchError(w, r, err)
		return
	}
	httputil.WriteJSON(w, res.ResultType.HTTPStatus(), res)
}

func (h *Handler) dispatchError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "operator dispatch failed", slog.Any("error", err))
	httputil.WriteJSON(w, http.StatusInternalServerError, result.FailedCommand(result.InternalServerError, "internal error"))
}

func (h *Handler) streamID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	streamID, err := uuid.Parse(chi.URLParam(r, "streamID"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, result.FailedCommand(result.BadRequest, "stream id must be a UUID"))
		return uuid.Nil, false
	}
	return streamID, true
}
