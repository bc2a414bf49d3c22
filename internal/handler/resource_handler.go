// Package handler provides HTTP handlers for the resource cache.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/rescache/internal/domain"
	"github.com/prn-tf/rescache/internal/rescache"
)

// defaultFolderLimit caps a folder listing page when the caller does not
// specify one.
const defaultFolderLimit = 1000

// ResourceHandler exposes the resource cache's four operations over HTTP.
// Resources live under /{type}/{path...}; a trailing slash (or the root)
// names a folder and supports pagination via ?token=&limit=.
type ResourceHandler struct {
	service     *rescache.Service
	logger      zerolog.Logger
	maxBodySize int64
}

// NewResourceHandler creates a ResourceHandler. maxBodySize caps a PUT
// request body read with http.MaxBytesReader, ahead of the service's own
// MaxSize check, so an oversized upload is rejected while streaming
// rather than after it has already been buffered in full.
func NewResourceHandler(service *rescache.Service, maxBodySize int64, logger zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{
		service:     service,
		maxBodySize: maxBodySize,
		logger:      logger.With().Str("component", "handler.resource").Logger(),
	}
}

// errorResponse is the JSON body written on a non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// itemResponse is the JSON body describing a single resource's metadata.
type itemResponse struct {
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// folderChildResponse describes one entry within a folder listing.
type folderChildResponse struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"is_folder"`
	*itemResponse
}

// folderResponse is the JSON body describing a folder listing page.
type folderResponse struct {
	Path      string                `json:"path"`
	Children  []folderChildResponse `json:"children"`
	NextToken string                `json:"next_token,omitempty"`
}

// descriptorFromRequest builds a ResourceDescriptor from the request's
// chi wildcard path and its trailing-slash/empty-path folder convention.
// chi does not clean "." / ".." segments out of a wildcard match, so the
// path is validated here before it ever reaches a blob backend that joins
// it onto a root directory or uses it as a listing prefix.
func descriptorFromRequest(r *http.Request) (domain.ResourceDescriptor, error) {
	typ := domain.ResourceType(chi.URLParam(r, "type"))
	path := chi.URLParam(r, "*")

	if path == "" {
		return domain.NewRootFolderDescriptor(typ), nil
	}

	trailingSlash := strings.HasSuffix(path, "/")
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return domain.NewRootFolderDescriptor(typ), nil
	}
	if err := domain.ValidatePath(trimmed); err != nil {
		return nil, err
	}
	if trailingSlash || r.URL.Query().Has("folder") {
		return domain.NewFolderDescriptor(typ, trimmed), nil
	}
	return domain.NewItemDescriptor(typ, trimmed), nil
}

// GetResource handles GET /{type}/{path...} for item descriptors and
// GET /{type}/{path...}?folder for folder descriptors.
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	d, err := descriptorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if d.IsFolder() {
		h.getFolder(w, r, d)
		return
	}

	body, err := h.service.GetResource(r.Context(), d)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if body == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(*body))
}

func (h *ResourceHandler) getFolder(w http.ResponseWriter, r *http.Request, d domain.ResourceDescriptor) {
	token := r.URL.Query().Get("token")
	limit := defaultFolderLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	_, folder, err := h.service.GetMetadata(r.Context(), d, token, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if folder == nil {
		writeError(w, http.StatusNotFound, "folder not found")
		return
	}

	resp := folderResponse{Path: d.AbsoluteFilePath(), NextToken: folder.NextToken}
	for _, child := range folder.Children {
		switch {
		case child.Item != nil:
			resp.Children = append(resp.Children, folderChildResponse{
				Path:     child.Item.Descriptor.AbsoluteFilePath(),
				IsFolder: false,
				itemResponse: &itemResponse{
					Path:      child.Item.Descriptor.AbsoluteFilePath(),
					CreatedAt: child.Item.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
					UpdatedAt: child.Item.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
				},
			})
		case child.Folder != nil:
			resp.Children = append(resp.Children, folderChildResponse{
				Path:     child.Folder.Descriptor.AbsoluteFilePath(),
				IsFolder: true,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HeadResource handles HEAD /{type}/{path...}, returning metadata without
// the body.
func (h *ResourceHandler) HeadResource(w http.ResponseWriter, r *http.Request) {
	d, err := descriptorFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if d.IsFolder() {
		writeError(w, http.StatusMethodNotAllowed, "HEAD is not supported for folders")
		return
	}

	item, _, err := h.service.GetMetadata(r.Context(), d, "", 0)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("X-Created-At", item.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	w.Header().Set("X-Updated-At", item.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	w.WriteHeader(http.StatusOK)
}

// PutResource handles PUT /{type}/{path...}, writing the request body as
// the resource's content.
func (h *ResourceHandler) PutResource(w http.ResponseWriter, r *http.Request) {
	d, err := descriptorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.IsFolder() {
		writeError(w, http.StatusMethodNotAllowed, "PUT is not supported for folders")
		return
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	meta, err := h.service.PutResource(r.Context(), d, string(raw))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, itemResponse{
		Path:      meta.Descriptor.AbsoluteFilePath(),
		CreatedAt: meta.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		UpdatedAt: meta.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

// DeleteResource handles DELETE /{type}/{path...}.
func (h *ResourceHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	d, err := descriptorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.IsFolder() {
		writeError(w, http.StatusMethodNotAllowed, "DELETE is not supported for folders")
		return
	}

	deleted, err := h.service.DeleteResource(r.Context(), d)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps a domain/rescache error to an HTTP status per
// the status table: not-found -> 404, body-too-large -> 413, corrupt
// cache entry -> 500, anything else -> 500.
func (h *ResourceHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound), errors.Is(err, domain.ErrFolderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrBodyTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrCorruptCacheEntry):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("corrupt cache entry")
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("resource operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
