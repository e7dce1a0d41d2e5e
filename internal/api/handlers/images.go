package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/citylore/server/internal/api/problem"
	"github.com/citylore/server/internal/imagery"
)

const (
	// maxProxyBytes caps the bytes relayed for one proxied image.
	maxProxyBytes = 20 << 20
	proxyTimeout  = 10 * time.Second
)

type ImagesHandler struct {
	extractor *imagery.Extractor
	proxy     *ImageProxy
	client    *http.Client
	env       string
}

func NewImagesHandler(extractor *imagery.Extractor, proxy *ImageProxy, env string) *ImagesHandler {
	return &ImagesHandler{
		extractor: extractor,
		proxy:     proxy,
		client:    &http.Client{Timeout: proxyTimeout},
		env:       env,
	}
}

type uploadResponse struct {
	ExtractedData CandidateEventView `json:"extracted_data"`
}

// Upload handles POST /api/admin/upload-event-image: multipart form with
// an "image" part and an optional "ocr_engine" preference.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid multipart form", err, h.env)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Missing image part", err, h.env)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Reading image failed", err, h.env)
		return
	}

	extractor := h.extractor.WithOCRPreference(r.FormValue("ocr_engine"))
	extraction, err := extractor.ExtractFromImage(r.Context(), data)
	if err != nil {
		problem.Write(w, r, http.StatusUnprocessableEntity, TypeValidationError, "Image extraction failed", err, h.env)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{ExtractedData: NewCandidateEventView(extraction)})
}

// Proxy handles GET /api/image-proxy. Only hosts on the hotlink blocklist
// are relayed; everything else is refused so the endpoint cannot serve as
// an open proxy.
func (h *ImagesHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		problem.Write(w, r, http.StatusBadRequest, TypeBadRequest, "Invalid image URL",
			fmt.Errorf("url parameter must be an absolute http(s) URL"), h.env)
		return
	}
	if !h.proxy.Blocked(target.Hostname()) {
		problem.Write(w, r, http.StatusForbidden, TypeBadRequest, "Host not proxied",
			fmt.Errorf("host %s is not on the proxy list", target.Hostname()), h.env)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, TypeInternalError, "Building proxy request failed", err, h.env)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		problem.Write(w, r, http.StatusBadGateway, TypeInternalError, "Fetching image failed", err, h.env)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		problem.Write(w, r, http.StatusBadGateway, TypeInternalError, "Upstream refused the image",
			fmt.Errorf("upstream returned %d", resp.StatusCode), h.env)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = io.Copy(w, io.LimitReader(resp.Body, maxProxyBytes))
}
