package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"annogate/internal/annotation"
	"annogate/internal/gateway"
	"annogate/pkg/platform/httputil"
	"annogate/pkg/requestcontext"
)

// AnnotationHandler serves annotation pages read through the gateway, with
// the caller's session.
type AnnotationHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewAnnotationHandler builds the handler.
func NewAnnotationHandler(gw *gateway.Gateway, logger *slog.Logger) *AnnotationHandler {
	return &AnnotationHandler{gateway: gw, logger: logger}
}

// Register mounts the page routes.
func (h *AnnotationHandler) Register(r chi.Router) {
	r.Get("/a/{id}", h.handleAnnotation)
	r.Get("/stream", h.handleStream)
}

func (h *AnnotationHandler) handleAnnotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ann, err := h.gateway.For(r).Read(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.InfoContext(ctx, "annotation page unavailable",
			"annotation_id", chi.URLParam(r, "id"),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ann)
}

// handleStream lists the newest annotations the caller may read. Query
// parameters are passed to the store search unchanged.
func (h *AnnotationHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.gateway.For(r).Search(ctx, r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []annotation.Annotation{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows})
}
