package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mharburg8/talk-to-your-inner-child/internal/handler/chat"
	"github.com/mharburg8/talk-to-your-inner-child/internal/handler/persona"
	"github.com/mharburg8/talk-to-your-inner-child/internal/logging"
	"github.com/mharburg8/talk-to-your-inner-child/internal/metrics"
	middlewarePkg "github.com/mharburg8/talk-to-your-inner-child/internal/middleware"
	"github.com/mharburg8/talk-to-your-inner-child/pkg/utils"
)

// Deps 路由需要的服务与中间件。
type Deps struct {
	Personas      persona.PersonaService
	Chat          chat.ChatService
	Auth          *middlewarePkg.Authenticator
	Metrics       *metrics.Metrics
	Logger        logging.Logger
	MaxAudioBytes int64
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(deps.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	auth := deps.Auth
	if auth == nil {
		auth = middlewarePkg.NewAuthenticator("", true)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Handler)

		persona.New(deps.Personas, deps.Logger).RegisterRoutes(api)
		chat.New(deps.Chat, deps.MaxAudioBytes, deps.Logger).RegisterRoutes(api)
	})

	return r
}
