package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"RingCut/logger"

	"github.com/gorilla/mux"
)

// corsMiddleware allows the browser front end to call the API from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter registers every API route on a gorilla/mux router.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	// 让 OPTIONS 预检请求命中中间件
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	router.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)

	// 原始音频
	router.HandleFunc("/api/upload", h.AuthMiddleware(h.UploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/assets", h.AuthMiddleware(h.ListAssetsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/assets/{id}", h.AuthMiddleware(h.GetAssetHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/assets/{id}", h.AuthMiddleware(h.DeleteAssetHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/assets/{id}/audio", h.AuthMiddleware(h.AssetAudioHandler)).Methods(http.MethodGet, http.MethodHead)

	// 铃声
	router.HandleFunc("/api/ringtones/validate", h.ValidateWindowHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/ringtones", h.AuthMiddleware(h.ListRingtonesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/ringtones", h.AuthMiddleware(h.CreateRingtoneHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/ringtones/{id}", h.AuthMiddleware(h.GetRingtoneHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/ringtones/{id}", h.AuthMiddleware(h.EditRingtoneHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/ringtones/{id}", h.AuthMiddleware(h.DeleteRingtoneHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/ringtones/{id}/{format}", h.AuthMiddleware(h.DownloadRingtoneHandler)).Methods(http.MethodGet, http.MethodHead)

	// 定时播放
	if h.scheduler != nil {
		tasks := router.PathPrefix("/api/task-scheduler").Subrouter()
		tasks.HandleFunc("/status", h.AuthMiddleware(h.ScheduleStatusHandler)).Methods(http.MethodGet)
		tasks.HandleFunc("/list", h.AuthMiddleware(h.ListSchedulesHandler)).Methods(http.MethodGet)
		tasks.HandleFunc("/create", h.AuthMiddleware(h.CreateScheduleHandler)).Methods(http.MethodPost)
		tasks.HandleFunc("/delete", h.AuthMiddleware(h.DeleteScheduleHandler)).Methods(http.MethodPost)
		tasks.HandleFunc("/enable", h.AuthMiddleware(h.EnableScheduleHandler)).Methods(http.MethodPost)
		tasks.HandleFunc("/disable", h.AuthMiddleware(h.DisableScheduleHandler)).Methods(http.MethodPost)
		tasks.HandleFunc("/test", h.AuthMiddleware(h.TestPlaybackHandler)).Methods(http.MethodPost)
	}

	router.HandleFunc("/ws/events", h.AuthMiddleware(h.EventsHandler))

	logger.Info("API routes registered",
		logger.String("endpoints", "/health, /api/upload, /api/assets, /api/ringtones, /api/task-scheduler, /ws/events"))
	return router
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	// 设置服务器超时. Downloads and uploads of a few MB fit comfortably.
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
