package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/mikrotik-router/internal/configsync"
	"github.com/micro-ha/mikrotik-router/internal/controller"
	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

// Controller is the controller surface exposed over HTTP.
type Controller interface {
	Connected() bool
	Snapshot() store.Snapshot
	Subscribe(fn controller.Listener) controller.ListenerID
	Unsubscribe(id controller.ListenerID)
	RunScript(ctx context.Context, name string) error
	SetValue(ctx context.Context, path, param string, value any, modParam string, modValue any) error
	ForgetHost(ctx context.Context, mac string) error
}

// Refresher requests an out-of-schedule cycle.
type Refresher interface {
	TriggerRefresh()
}

// ErrorReporter exposes the last connection error class.
type ErrorReporter interface {
	Error() routeros.ErrorKind
}

type Options struct {
	Options  *configsync.Manager
	Device   ErrorReporter
	Metrics  http.Handler
	Upgrader *websocket.Upgrader
}

type API struct {
	controller Controller
	poller     Refresher
	options    *configsync.Manager
	device     ErrorReporter
	metrics    http.Handler
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func New(c Controller, p Refresher, logger *slog.Logger, opts Options) *API {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	if opts.Upgrader != nil {
		upgrader = *opts.Upgrader
	}
	return &API{
		controller: c,
		poller:     p,
		options:    opts.Options,
		device:     opts.Device,
		metrics:    opts.Metrics,
		upgrader:   upgrader,
		logger:     logger.With("component", "http"),
	}
}

// Logger implements LogProvider.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connected": a.controller.Connected()})
}

func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"connected": a.controller.Connected()}
	if a.device != nil {
		payload["error"] = string(a.device.Error())
	}
	if a.options != nil {
		payload["options_version"] = a.options.Version()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) Data(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Snapshot())
}

func (a *API) Category(w http.ResponseWriter, _ *http.Request, category string) {
	section, ok := a.controller.Snapshot()[category]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Unknown category")
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (a *API) Record(w http.ResponseWriter, _ *http.Request, category, uid string) {
	record, ok := a.controller.Snapshot()[category][uid]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) RunScript(w http.ResponseWriter, r *http.Request, name string) {
	if err := a.controller.RunScript(r.Context(), name); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

type setValueRequest struct {
	Path     string `json:"path"`
	Param    string `json:"param"`
	Value    any    `json:"value"`
	ModParam string `json:"mod_param"`
	ModValue any    `json:"mod_value"`
}

func (a *API) SetValue(w http.ResponseWriter, r *http.Request) {
	var payload setValueRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	payload.Path = strings.TrimSpace(payload.Path)
	if !strings.HasPrefix(payload.Path, "/") || payload.Param == "" || payload.ModParam == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload", "path, param and mod_param are required")
		return
	}
	err := a.controller.SetValue(r.Context(), payload.Path, payload.Param, jsonValue(payload.Value), payload.ModParam, jsonValue(payload.ModValue))
	if err != nil {
		writeCommandError(w, err)
		return
	}
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) ForgetHost(w http.ResponseWriter, r *http.Request, mac string) {
	err := a.controller.ForgetHost(r.Context(), mac)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, controller.ErrHostNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Host not found")
	case errors.Is(err, controller.ErrBusy):
		writeError(w, http.StatusConflict, "busy", "A polling cycle is in progress")
	default:
		writeError(w, http.StatusInternalServerError, "forget_failed", err.Error())
	}
}

func (a *API) GetOptions(w http.ResponseWriter, _ *http.Request) {
	if a.options == nil {
		writeError(w, http.StatusNotFound, "options_unavailable", "Options are not managed at runtime")
		return
	}
	writeJSON(w, http.StatusOK, optionsView(a.options.Get()))
}

func (a *API) PatchOptions(w http.ResponseWriter, r *http.Request) {
	if a.options == nil {
		writeError(w, http.StatusNotFound, "options_unavailable", "Options are not managed at runtime")
		return
	}
	var patch configsync.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	changed, err := a.options.Apply(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_option", err.Error())
		return
	}
	if changed {
		a.poller.TriggerRefresh()
	}
	writeJSON(w, http.StatusOK, optionsView(a.options.Get()))
}

func optionsView(cfg model.RouterConfig) map[string]any {
	return map[string]any{
		"host":                    cfg.Host,
		"scan_interval_sec":       int(cfg.ScanInterval() / time.Second),
		"unit_of_measurement":     cfg.DisplayUnit(),
		"track_arp":               cfg.ARPTracking(),
		"track_hosts":             cfg.TrackHosts,
		"track_hosts_timeout_sec": int(cfg.TrackHostsTimeout() / time.Second),
		"track_accounting":        cfg.TrackAccounting,
	}
}

// jsonValue narrows decoded JSON numbers to int64 when they are whole.
func jsonValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func writeCommandError(w http.ResponseWriter, err error) {
	var notFound *routeros.EntryNotFoundError
	var validation *routeros.ValidationError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, routeros.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "not_connected", "Router is not connected")
	default:
		writeError(w, http.StatusBadGateway, "command_failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}
