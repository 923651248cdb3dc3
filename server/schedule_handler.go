package server

import (
	"context"
	"fmt"
	"net/http"

	"RingCut/core/scheduler"
	"RingCut/logger"
)

type createScheduleRequest struct {
	TaskName   string `json:"task_name"`
	RingtoneID string `json:"ringtone_id"`
	Time       string `json:"time"`
	Days       []int  `json:"days"`
	Volume     *int   `json:"volume"`
}

type taskNameRequest struct {
	TaskName string `json:"task_name"`
}

type testPlaybackRequest struct {
	RingtoneID string `json:"ringtone_id"`
	Volume     *int   `json:"volume"`
}

// ScheduleStatusHandler reports whether playback is available.
func (h *APIHandler) ScheduleStatusHandler(w http.ResponseWriter, r *http.Request) {
	st := h.scheduler.Status(r.Context())
	msg := "ringtone player is available"
	if !st.Available {
		msg = "ringtone player is not available"
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"available": st.Available,
		"running":   st.Running,
		"schedules": st.Schedules,
		"playback":  st.Playback,
		"message":   msg,
	})
}

// ListSchedulesHandler lists schedules with their next fire time.
func (h *APIHandler) ListSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.scheduler.List(r.Context())
	if err != nil {
		handleError(w, r, "list schedules", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"tasks": list, "count": len(list)})
}

// CreateScheduleHandler creates a weekly schedule for a ringtone.
func (h *APIHandler) CreateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "no data provided")
		return
	}
	required := []struct {
		field   string
		missing bool
	}{
		{"task_name", req.TaskName == ""},
		{"ringtone_id", req.RingtoneID == ""},
		{"time", req.Time == ""},
		{"days", req.Days == nil},
	}
	for _, f := range required {
		if f.missing {
			writeError(w, http.StatusBadRequest, "missing required field: "+f.field)
			return
		}
	}

	sc, err := h.scheduler.Create(r.Context(), scheduler.CreateRequest{
		Name:       req.TaskName,
		RingtoneID: req.RingtoneID,
		Clock:      req.Time,
		Days:       req.Days,
		Volume:     req.Volume,
	})
	if err != nil {
		handleError(w, r, "create schedule", err)
		return
	}

	logger.Info("创建定时任务", logger.String("task", sc.Name), logger.String("time", sc.Clock))
	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"message":   fmt.Sprintf("Scheduled task %q created successfully", sc.Name),
		"task_name": sc.Name,
		"task":      sc,
	})
}

// scheduleAction wraps the delete/enable/disable endpoints, which all take {"task_name": ...}.
func scheduleAction(verb string, op func(ctx context.Context, name string) error, w http.ResponseWriter, r *http.Request) {
	var req taskNameRequest
	if err := decodeJSON(r, &req); err != nil || req.TaskName == "" {
		writeError(w, http.StatusBadRequest, "task name is required")
		return
	}
	if err := op(r.Context(), req.TaskName); err != nil {
		handleError(w, r, verb+" schedule", err)
		return
	}
	logger.Info("schedule "+verb+"d", logger.String("task", req.TaskName))
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"message":   fmt.Sprintf("Scheduled task %q %sd successfully", req.TaskName, verb),
		"task_name": req.TaskName,
	})
}

// DeleteScheduleHandler deletes a schedule by name.
func (h *APIHandler) DeleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	scheduleAction("delete", h.scheduler.Delete, w, r)
}

// EnableScheduleHandler enables a schedule by name.
func (h *APIHandler) EnableScheduleHandler(w http.ResponseWriter, r *http.Request) {
	scheduleAction("enable", h.scheduler.Enable, w, r)
}

// DisableScheduleHandler disables a schedule by name.
func (h *APIHandler) DisableScheduleHandler(w http.ResponseWriter, r *http.Request) {
	scheduleAction("disable", h.scheduler.Disable, w, r)
}

// TestPlaybackHandler plays a ringtone immediately.
func (h *APIHandler) TestPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	var req testPlaybackRequest
	if err := decodeJSON(r, &req); err != nil || req.RingtoneID == "" {
		writeError(w, http.StatusBadRequest, "ringtone_id is required")
		return
	}
	volume := -1
	if req.Volume != nil {
		volume = *req.Volume
	}
	if err := h.scheduler.Test(r.Context(), req.RingtoneID, volume); err != nil {
		handleError(w, r, "test playback", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"message": "Ringtone playback started"})
}
