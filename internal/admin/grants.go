package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/issuer"
	"github.com/sipico/preview-gate/internal/middleware"
)

// DisplayLayout renders grant times for humans, in the site timezone.
const DisplayLayout = "Jan 2, 2006 3:04 pm"

// CreateGrantRequest is the request body for POST /admin/api/grants.
// Exactly one of Duration or ExpiresAt selects the expiry.
type CreateGrantRequest struct {
	ClientName string          `json:"client_name"`
	Resource   string          `json:"resource,omitempty"`
	SiteWide   bool            `json:"site_wide"`
	Duration   *grant.Duration `json:"duration,omitempty"`
	ExpiresAt  string          `json:"expires_at,omitempty"`
	ShowBanner bool            `json:"show_banner"`
}

// GrantResponse represents a grant in API responses.
type GrantResponse struct {
	Token      string    `json:"token"`
	ClientName string    `json:"client_name"`
	Scope      string    `json:"scope"`
	Resource   string    `json:"resource,omitempty"`
	Label      string    `json:"label"`
	Link       string    `json:"link"`
	ShowBanner bool      `json:"show_banner"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Created    string    `json:"created_display"`
	Expires    string    `json:"expires_display"`
	Expired    bool      `json:"expired"`
}

func (h *Handler) grantResponse(e issuer.Entry) GrantResponse {
	loc := h.issuer.Location()
	g := e.Grant
	return GrantResponse{
		Token:      g.Token,
		ClientName: g.ClientName,
		Scope:      g.Scope.Kind.String(),
		Resource:   string(g.Scope.Resource),
		Label:      e.Label,
		Link:       e.Link,
		ShowBanner: g.ShowBanner,
		CreatedAt:  g.CreatedAt.UTC(),
		ExpiresAt:  g.ExpiresAt.UTC(),
		Created:    g.CreatedAt.In(loc).Format(DisplayLayout),
		Expires:    g.ExpiresAt.In(loc).Format(DisplayLayout),
		Expired:    e.Expired,
	}
}

// toRequest converts the API body into an issuer request. Shape errors are
// reported as grant validation errors so they share one response path.
func (req CreateGrantRequest) toRequest() (grant.Request, error) {
	out := grant.Request{
		ClientName: req.ClientName,
		ShowBanner: req.ShowBanner,
	}

	resource := strings.TrimSpace(req.Resource)
	switch {
	case req.SiteWide && resource != "":
		return out, &grant.ValidationError{Field: "resource", Message: "must be empty for a site-wide grant"}
	case req.SiteWide:
		out.Scope = grant.SiteWide()
	default:
		// Left unnormalized so an empty resource is rejected by the minter.
		out.Scope = grant.Scope{Kind: grant.ScopeSinglePage, Resource: grant.ResourceID(resource)}
	}

	hasDate := strings.TrimSpace(req.ExpiresAt) != ""
	switch {
	case req.Duration != nil && hasDate:
		return out, &grant.ValidationError{Field: "expiry", Message: "give either duration or expires_at, not both"}
	case req.Duration != nil:
		out.Expiry = *req.Duration
	case hasDate:
		out.Expiry = grant.AbsoluteDate(req.ExpiresAt)
	}

	return out, nil
}

// HandleCreateGrant issues a new grant
// POST /admin/api/grants
func (h *Handler) HandleCreateGrant(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context(), h.logger)

	var body CreateGrantRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large")
			return
		}
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body",
			`Expected {"client_name": "...", "resource": "/page" or "site_wide": true, "duration": {"days": 1} or "expires_at": "2026-10-20T18:00"}`)
		return
	}

	req, err := body.toRequest()
	if err == nil {
		var g *grant.Grant
		g, err = h.issuer.Create(r.Context(), req)
		if err == nil {
			writeJSON(w, http.StatusCreated, h.grantResponse(h.issuer.Entry(g)))
			return
		}
	}

	var verr *grant.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, APIError{
			Error:   ErrCodeInvalidRequest,
			Message: verr.Error(),
			Field:   verr.Field,
		})
	default:
		log.Error("failed to create grant", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeStorageUnavailable, "Failed to save grant")
	}
}

// HandleDeleteGrant revokes a grant. Unknown tokens are not an error.
// DELETE /admin/api/grants/{token}
func (h *Handler) HandleDeleteGrant(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.issuer.Delete(r.Context(), token); err != nil {
		middleware.Logger(r.Context(), h.logger).Error("failed to delete grant", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeStorageUnavailable, "Failed to delete grant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListGrants returns every grant, expired ones flagged
// GET /admin/api/grants
func (h *Handler) HandleListGrants(w http.ResponseWriter, r *http.Request) {
	entries, err := h.issuer.List(r.Context())
	if err != nil {
		middleware.Logger(r.Context(), h.logger).Error("failed to list grants", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeStorageUnavailable, "Failed to load grants")
		return
	}

	resp := make([]GrantResponse, len(entries))
	for i, e := range entries {
		resp[i] = h.grantResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleExportGrants downloads every grant as CSV
// GET /admin/api/grants/export.csv
func (h *Handler) HandleExportGrants(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.issuer.ExportCSV(r.Context(), &buf); err != nil {
		middleware.Logger(r.Context(), h.logger).Error("failed to export grants", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeStorageUnavailable, "Failed to load grants")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+issuer.ExportFilename)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes()) //nolint:errcheck
}
