package server

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ledgercache/ledgercache/api"
	"github.com/ledgercache/ledgercache/config"
	"github.com/ledgercache/ledgercache/log"
	"github.com/ledgercache/ledgercache/metrics"
	"github.com/ledgercache/ledgercache/util"
	"github.com/ledgercache/ledgercache/web"
)

func createRouter(cfg *config.Config, cache api.StringCache) *chi.Mux {
	router := chi.NewRouter()

	if cfg.API.Cors {
		configureCorsHandler(router)
	}

	router.Use(middleware.Recoverer)

	configureRootHandler(cfg, router)

	api.RegisterEndpoints(router, cache)

	if cfg.Metrics.IsEnabled() {
		metrics.StartCollection()

		router.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	return router
}

func configureRootHandler(cfg *config.Config, router *chi.Mux) {
	t := template.Must(template.New("index").Parse(web.IndexTmpl))

	router.Get("/", func(writer http.ResponseWriter, request *http.Request) {
		type HandlerLink struct {
			URL   string
			Title string
		}

		type PageData struct {
			Links     []HandlerLink
			Version   string
			BuildTime string
		}

		pd := PageData{
			Links: []HandlerLink{
				{URL: api.PathEntries, Title: "Live entries"},
				{URL: api.PathCacheStats, Title: "Cache statistics"},
			},
			Version:   util.Version,
			BuildTime: util.BuildTime,
		}

		if cfg.Metrics.IsEnabled() {
			pd.Links = append(pd.Links, HandlerLink{
				URL:   cfg.Metrics.Path,
				Title: "Prometheus endpoint",
			})
		}

		writer.Header().Set("content-type", "text/html; charset=utf-8")

		if err := t.Execute(writer, pd); err != nil {
			log.Log().Error("can't write index template: ", err)
			writer.WriteHeader(http.StatusInternalServerError)
		}
	})
}

func configureCorsHandler(router *chi.Mux) {
	crs := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	router.Use(crs.Handler)
}
