package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// ViewHandler exposes the view state, its edits and the render pass.
type ViewHandler struct {
	svc    barplot.Service
	logger logging.Logger
}

func NewViewHandler(svc barplot.Service, logger logging.Logger) *ViewHandler {
	return &ViewHandler{svc: svc, logger: logger.Named("view_handler")}
}

// DepthRequest is the body of PUT /view/depth.
type DepthRequest struct {
	Depth int `json:"depth"`
}

// OverrideRequest is the body of POST /view/expansions and /view/collapses.
type OverrideRequest struct {
	Taxon   string `json:"taxon"`
	ToDepth int    `json:"to_depth"`
}

type SchemeRequest struct {
	Scheme string `json:"scheme"`
}

// ColorRequest pins taxon to color; an empty color removes the pin.
type ColorRequest struct {
	Taxon string `json:"taxon"`
	Color string `json:"color"`
}

type SchemesResponse struct {
	Current string   `json:"current"`
	Schemes []string `json:"schemes"`
}

// GetView handles GET /view.
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.ViewState(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Render handles POST /view/render. An empty body renders with no controls.
func (h *ViewHandler) Render(w http.ResponseWriter, r *http.Request) {
	var opts barplot.RenderOptions
	if err := decodeJSON(w, r, &opts); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	res, err := h.svc.Render(r.Context(), opts)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetDepth handles PUT /view/depth.
func (h *ViewHandler) SetDepth(w http.ResponseWriter, r *http.Request) {
	var req DepthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	o, err := h.svc.SetDisplayDepth(r.Context(), req.Depth)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeOutcome(w, o)
}

func (h *ViewHandler) decodeOverride(w http.ResponseWriter, r *http.Request) (OverrideRequest, bool) {
	var req OverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return req, false
	}
	if strings.TrimSpace(req.Taxon) == "" {
		writeAppError(w, h.logger, errors.InvalidParam("taxon is required"))
		return req, false
	}
	return req, true
}

// RequestExpansion handles POST /view/expansions.
func (h *ViewHandler) RequestExpansion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOverride(w, r)
	if !ok {
		return
	}
	o, err := h.svc.RequestExpansion(r.Context(), req.Taxon, req.ToDepth)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeOutcome(w, o)
}

// RequestCollapse handles POST /view/collapses.
func (h *ViewHandler) RequestCollapse(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeOverride(w, r)
	if !ok {
		return
	}
	o, err := h.svc.RequestCollapse(r.Context(), req.Taxon, req.ToDepth)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeOutcome(w, o)
}

func taxonParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", errors.InvalidParam(name + " query parameter is required")
	}
	return v, nil
}

// ClearExpansion handles DELETE /view/expansions?taxon=.
func (h *ViewHandler) ClearExpansion(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, h.svc.ClearExpansion)
}

// ClearCollapse handles DELETE /view/collapses?taxon=.
func (h *ViewHandler) ClearCollapse(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, h.svc.ClearCollapse)
}

func (h *ViewHandler) clear(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, taxon string) error) {
	taxon, err := taxonParam(r, "taxon")
	if err == nil {
		err = fn(r.Context(), taxon)
	}
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /view/reset.
func (h *ViewHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.GetView(w, r)
}

// Schemes handles GET /view/schemes.
func (h *ViewHandler) Schemes(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.ViewState(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SchemesResponse{Current: state.Scheme, Schemes: h.svc.Schemes()})
}

// SetScheme handles PUT /view/scheme.
func (h *ViewHandler) SetScheme(w http.ResponseWriter, r *http.Request) {
	var req SchemeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.svc.SetColorScheme(r.Context(), req.Scheme); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetColor handles PUT /view/colors.
func (h *ViewHandler) SetColor(w http.ResponseWriter, r *http.Request) {
	var req ColorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if err := h.svc.SetCustomColor(r.Context(), req.Taxon, req.Color); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DescribeTaxon handles GET /taxa?path=.
func (h *ViewHandler) DescribeTaxon(w http.ResponseWriter, r *http.Request) {
	path, err := taxonParam(r, "path")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	desc, err := h.svc.DescribeTaxon(r.Context(), path)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}
