package server

import (
	"net/http"
	"strconv"

	"RingCut/core/library"
	"RingCut/core/ringtone"
	"RingCut/logger"
	"RingCut/model"

	"github.com/gorilla/mux"
)

// ringtoneRequest is the body of create and edit requests. Settings fields are inlined.
type ringtoneRequest struct {
	SourceID string `json:"sourceId"`
	Name     string `json:"name"`
	model.RingtoneSettings
}

func decodeRingtoneRequest(r *http.Request) (ringtoneRequest, error) {
	// volume defaults to full scale when omitted
	req := ringtoneRequest{RingtoneSettings: model.RingtoneSettings{Volume: 1}}
	err := decodeJSON(r, &req)
	return req, err
}

// ValidateWindowHandler answers whether a window can be cut: GET ?duration=&start=&end=
func (h *APIHandler) ValidateWindowHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var vals [3]float64
	for i, name := range []string{"duration", "start", "end"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid or missing "+name)
			return
		}
		vals[i] = v
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"canCreate": ringtone.CanCreate(vals[0], vals[1], vals[2]),
	})
}

// CreateRingtoneHandler cuts a ringtone from an imported original.
func (h *APIHandler) CreateRingtoneHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRingtoneRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" {
		writeError(w, http.StatusBadRequest, "sourceId is required")
		return
	}

	rt, err := h.library.CreateRingtone(r.Context(), library.CreateRequest{
		SourceID: req.SourceID,
		Name:     req.Name,
		Settings: req.RingtoneSettings,
	})
	if err != nil {
		handleError(w, r, "create ringtone", err)
		return
	}

	logger.Info("ringtone created",
		logger.String("id", rt.Asset.ID),
		logger.String("source", req.SourceID),
		logger.String("wav", rt.WAVKey),
		logger.String("mp3", rt.MP3Key))
	writeSuccess(w, http.StatusCreated, map[string]interface{}{"ringtone": rt})
}

// ListRingtonesHandler lists all ringtones.
func (h *APIHandler) ListRingtonesHandler(w http.ResponseWriter, r *http.Request) {
	rings, err := h.library.ListRingtones(r.Context())
	if err != nil {
		handleError(w, r, "list ringtones", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"ringtones": rings, "count": len(rings)})
}

// GetRingtoneHandler returns a ringtone with its settings.
func (h *APIHandler) GetRingtoneHandler(w http.ResponseWriter, r *http.Request) {
	rt, err := h.library.GetRingtone(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, "get ringtone", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"ringtone": rt})
}

// EditRingtoneHandler re-cuts an existing ringtone from its original.
func (h *APIHandler) EditRingtoneHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRingtoneRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rt, err := h.library.EditRingtone(r.Context(), mux.Vars(r)["id"], library.EditRequest{
		Name:     req.Name,
		Settings: req.RingtoneSettings,
	})
	if err != nil {
		handleError(w, r, "edit ringtone", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"ringtone": rt})
}

// DeleteRingtoneHandler deletes both exports of a ringtone.
func (h *APIHandler) DeleteRingtoneHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.library.GetRingtone(r.Context(), id); err != nil {
		handleError(w, r, "delete ringtone", err)
		return
	}
	h.DeleteAssetHandler(w, r)
}

// DownloadRingtoneHandler sends the wav or mp3 export as an attachment.
func (h *APIHandler) DownloadRingtoneHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	format := library.Format(vars["format"])
	if format != library.FormatWAV && format != library.FormatMP3 {
		writeError(w, http.StatusBadRequest, "format must be wav or mp3")
		return
	}
	h.serveAsset(w, r, vars["id"], format, true)
}
