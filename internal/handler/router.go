package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/chatrooms/internal"
	"github.com/johndosdos/chatrooms/internal/cache"
	ratelimiter "github.com/johndosdos/chatrooms/internal/rate_limiter"
)

// RouterConfig carries everything the HTTP routes need.
type RouterConfig struct {
	Accounts       AccountStore
	Chats          ChatStore
	Cache          cache.Cache
	HistoryLimit   int
	Engine         Server
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
	AllowedOrigins []string
	AuthLimiter    *ratelimiter.IPRateLimiter
	Ready          map[string]Pinger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz())
	r.Get("/readyz", Readyz(cfg.Ready))

	r.Get("/ws", ServeWs(cfg.Engine, cfg.AllowedOrigins))

	bearer := func(next http.Handler) http.Handler {
		return internal.Middleware(next, cfg.JWTSecret, cfg.JWTIssuer)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.AuthLimiter != nil {
				r.Use(func(next http.Handler) http.Handler {
					return cfg.AuthLimiter.Middleware(next)
				})
			}
			r.Post("/register", Register(cfg.Accounts))
			r.Post("/login", Login(cfg.Accounts, cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL))
		})

		r.With(bearer).Get("/me", Me(cfg.Accounts))
	})

	r.With(bearer).Get("/users/{userID}", GetUser(cfg.Accounts))

	r.Route("/chats", func(r chi.Router) {
		r.Use(bearer)
		r.Get("/", ListChats(cfg.Chats))
		r.Post("/", CreateChat(cfg.Chats))
		r.Post("/{chatID}/participants", JoinChat(cfg.Chats))
		r.Get("/{chatID}/messages", ListMessages(cfg.Chats, cfg.Cache, cfg.HistoryLimit))
	})

	return r
}
