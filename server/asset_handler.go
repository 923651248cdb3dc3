package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"RingCut/core/library"
	"RingCut/logger"

	"github.com/gorilla/mux"
)

// UploadHandler imports an original from the multipart field "file".
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}

	asset, err := h.library.Import(r.Context(), header.Filename, file)
	if err != nil {
		handleError(w, r, "upload", err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]interface{}{"asset": asset})
}

// ListAssetsHandler lists imported originals.
func (h *APIHandler) ListAssetsHandler(w http.ResponseWriter, r *http.Request) {
	assets, err := h.library.ListOriginals(r.Context())
	if err != nil {
		handleError(w, r, "list assets", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"assets": assets, "count": len(assets)})
}

// GetAssetHandler returns one asset of either kind.
func (h *APIHandler) GetAssetHandler(w http.ResponseWriter, r *http.Request) {
	asset, err := h.library.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, "get asset", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"asset": asset})
}

// DeleteAssetHandler removes an asset and any schedules that play it.
func (h *APIHandler) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.library.Remove(r.Context(), id); err != nil {
		handleError(w, r, "delete asset", err)
		return
	}

	removed := int64(0)
	if h.scheduler != nil {
		n, err := h.scheduler.RemoveForRingtone(r.Context(), id)
		if err != nil {
			logger.Error("failed to remove schedules of deleted asset", logger.String("id", id), logger.ErrorField(err))
		}
		removed = n
	}

	subject, _ := SubjectFromContext(r.Context())
	logger.Info("asset deleted", logger.String("id", id), logger.String("by", subject))
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message":           "deleted",
		"id":                id,
		"schedules_removed": removed,
	})
}

// AssetAudioHandler streams an original's bytes.
func (h *APIHandler) AssetAudioHandler(w http.ResponseWriter, r *http.Request) {
	h.serveAsset(w, r, mux.Vars(r)["id"], library.FormatSource, false)
}

func (h *APIHandler) serveAsset(w http.ResponseWriter, r *http.Request, id string, format library.Format, attachment bool) {
	dl, err := h.library.Open(r.Context(), id, format)
	if err != nil {
		handleError(w, r, "open asset", err)
		return
	}
	defer dl.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	if !dl.ModTime.IsZero() {
		w.Header().Set("Last-Modified", dl.ModTime.UTC().Format(http.TimeFormat))
	}
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, dl.Name))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, dl); err != nil {
		logger.Warn("error streaming asset", logger.String("id", id), logger.ErrorField(err))
	}
}
