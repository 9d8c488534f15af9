package httpapi

import (
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"onecam/internal/domain"
	"onecam/internal/http/handlers"
	"onecam/internal/infra"
	"onecam/internal/infra/geoip"
	"onecam/internal/middleware"
)

// Deps are the collaborators the router mounts.
type Deps struct {
	App      *handlers.App
	WS       http.HandlerFunc
	SocketIO http.HandlerFunc
	Geo      geoip.CountryResolver
	Logger   zerolog.Logger
}

func NewRouter(cfg *infra.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.PeerAddr,
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(deps.Geo),
		middleware.Logger(deps.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSOrigins),
	)

	r.Get("/v1/healthz", deps.App.Health)
	r.Get("/v1/jobs", deps.App.Jobs)
	r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/send", deps.App.Send)
	if deps.WS != nil {
		r.Get("/ws", deps.WS)
	}
	if deps.SocketIO != nil {
		r.Get("/socket.io", deps.SocketIO)
		r.Get("/socket.io/", deps.SocketIO)
	}

	for _, root := range cfg.WatchedRoots() {
		mountStatic(r, root)
	}
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		r.Handle("/*", http.FileServer(noListing{http.Dir(cfg.StaticDir)}))
	}

	return r
}

// mountStatic serves a root's public destination under its URL prefix.
func mountStatic(r chi.Router, root domain.WatchedRoot) {
	prefix := "/" + strings.Trim(root.Prefix, "/")
	fs := http.StripPrefix(prefix+"/", http.FileServer(noListing{http.Dir(root.Destination)}))
	r.Get(prefix+"/*", fs.ServeHTTP)
}

// noListing hides dot-files, which include in-flight copies, and serves a
// directory only when it holds an index.html.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return nil, os.ErrNotExist
		}
	}
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			_ = f.Close()
			return nil, os.ErrNotExist
		}
		_ = index.Close()
	}
	return f, nil
}
