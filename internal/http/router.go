package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP routing tree over the controller surface.
func NewRouter(api *API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(api))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	if api.metrics != nil {
		r.Method(http.MethodGet, "/metrics", api.metrics)
	}

	r.Route("/api", func(apiRouter chi.Router) {
		// The update stream is long-lived and must stay outside the timeout.
		apiRouter.Get("/updates", api.Updates)

		apiRouter.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(20 * time.Second))

			timed.Get("/status", api.Status)
			timed.Get("/data", api.Data)
			timed.Get("/data/{category}", func(w http.ResponseWriter, r *http.Request) {
				api.Category(w, r, chi.URLParam(r, "category"))
			})
			timed.Get("/data/{category}/{uid}", func(w http.ResponseWriter, r *http.Request) {
				api.Record(w, r, chi.URLParam(r, "category"), chi.URLParam(r, "uid"))
			})
			timed.Post("/refresh", api.Refresh)
			timed.Post("/scripts/{name}/run", func(w http.ResponseWriter, r *http.Request) {
				api.RunScript(w, r, chi.URLParam(r, "name"))
			})
			timed.Post("/set", api.SetValue)
			timed.Delete("/hosts/{mac}", func(w http.ResponseWriter, r *http.Request) {
				api.ForgetHost(w, r, chi.URLParam(r, "mac"))
			})
			timed.Get("/options", api.GetOptions)
			timed.Patch("/options", api.PatchOptions)
		})
	})
	return r
}
