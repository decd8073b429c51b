package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

// Handlers holds the campaign endpoints.
type Handlers struct {
	svc *campaign.Service
}

// NewHandlers creates the handler set.
func NewHandlers(svc *campaign.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// ListCampaigns returns campaigns with pagination.
// GET /api/campaigns?status=&search=&limit=&offset=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}

	out, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"campaigns": out,
		"total":     total,
	})
}

// GetCampaign returns one campaign with accounts and templates.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, c)
}

// StartCampaign arms dispatch jobs for a draft, scheduled, or paused
// campaign.
func (h *Handlers) StartCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Start)
}

// PauseCampaign stops a running campaign.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Pause)
}

// ResumeCampaign restarts a paused campaign.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Resume)
}

// CompleteCampaign force-finishes a campaign.
func (h *Handlers) CompleteCampaign(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Complete)
}

// DeleteCampaign removes a non-running campaign.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// QueueReport returns send progress and a completion estimate.
func (h *Handlers) QueueReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.QueueReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, rep)
}

type testSendRequest struct {
	Email string `json:"email"`
}

// TestSend delivers one rendered message to the given address.
// POST /api/campaigns/{id}/test-send {"email": "..."}
func (h *Handlers) TestSend(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	if err := h.svc.SendTest(r.Context(), chi.URLParam(r, "id"), req.Email); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "sent"})
}

func (h *Handlers) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	if err := op(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrCampaignRunning):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrNoSendableAccount),
		errors.Is(err, campaign.ErrNoTemplates):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
