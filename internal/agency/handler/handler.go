// Package handler exposes the agency aggregate over HTTP. Handlers are
// mechanical: parse, build the bus message, dispatch, map the envelope's
// result type onto the response status.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleetledger/internal/agency"
	"fleetledger/internal/cqrs/bus"
	"fleetledger/internal/cqrs/messages"
	"fleetledger/internal/cqrs/paging"
	"fleetledger/internal/cqrs/result"
	"fleetledger/pkg/platform/httputil"
)

// Handler wires agency endpoints onto the message bus.
type Handler struct {
	bus    *bus.Bus
	logger *slog.Logger
}

func New(b *bus.Bus, logger *slog.Logger) *Handler {
	return &Handler{bus: b, logger: logger}
}

// Register mounts agency endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/agencies", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/count", h.HandleCount)
		r.Route("/{streamID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/", h.HandleModify)
			r.Delete("/", h.HandleDelete)
			r.Post("/contacts", h.HandleCreateContact)
			r.Put("/contacts/{contactID}", h.HandleModifyContact)
		})
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	data, ok := httputil.ReadRawJSON(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewCreateCommand(ctx, agency.Tag, data))
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
	h.writeCommand(w, r, messages.NewModifyCommand(ctx, agency.Tag, streamID, data))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewDeleteCommand(ctx, agency.Tag, streamID))
}

func (h *Handler) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	data, ok := httputil.ReadRawJSON(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewCreateChildCommand(ctx, agency.Tag, streamID, agency.ContactTag, data))
}

func (h *Handler) HandleModifyContact(w http.ResponseWriter, r *http.Request) {
	streamID, ok := h.streamID(w, r)
	if !ok {
		return
	}
	contactID, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, result.FailedCommand(result.BadRequest, "contact id must be an integer"))
		return
	}
	data, ok := httputil.ReadRawJSON(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	h.writeCommand(w, r, messages.NewModifyChildCommand(ctx, agency.Tag, streamID, contactID, agency.ContactTag, data))
}

func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := bus.RequestAs[result.QueryCountResult](ctx, h.bus, messages.NewGetCountQuery(ctx, agency.Tag))
	if err != nil {
		h.dispatchError(w, r, err)
		return
	}
	httputil.WriteJSON(w, res.ResultType.HTTPStatus(), res)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := messages.NewGetListQuery(ctx, agency.Tag, paging.FromQuery(r.URL.Query()))
	res, err := bus.RequestAs[result.QueryResultList[*agency.Agency]](ctx, h.bus, q)
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
	res, err := bus.RequestAs[result.QueryResult[*agency.Agency]](ctx, h.bus, messages.NewGetSingleQuery(ctx, agency.Tag, streamID))
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

// dispatchError covers bus wiring failures, not domain outcomes; those come
// back inside the envelope.
func (h *Handler) dispatchError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "agency dispatch failed", slog.Any("error", err))
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
