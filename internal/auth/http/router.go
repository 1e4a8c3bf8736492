package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/saatphere/saatphere/internal/auth/service"
	"github.com/saatphere/saatphere/internal/auth/session"
	"github.com/saatphere/saatphere/internal/auth/store"
	"github.com/saatphere/saatphere/pkg/httpx"
	"github.com/saatphere/saatphere/pkg/slogx"

	_ "github.com/saatphere/saatphere/api/auth" // Swagger docs
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	cookieName   string
	cookieTTL    time.Duration
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	sessions session.Store

	TokenService        *service.TokenService
	LoginService        *service.LoginService
	RegistrationService *service.RegistrationService
}

func NewRouter(
	buildVersion, cookieName string,
	cookieTTL time.Duration,
	st store.Store,
	sessions session.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		cookieName:   cookieName,
		cookieTTL:    cookieTTL,
		startTime:    time.Now(),
		store:        st,
		sessions:     sessions,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUserInfo()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Saat Phere Authentication Service API
//	@version		0.1.0
//	@description	Authentication and session management for the Saat Phere matrimonial platform:
//	@description	JWT-based access and refresh tokens, single active session per account, and
//	@description	device-bound tokens.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authn() httpx.Middleware {
	return AuthnMiddleware(r.TokenService, r.cookieName)
}

func (r *Router) registerAuth() {
	login := &LoginHandler{
		LoginService: r.LoginService,
		CookieName:   r.cookieName,
		CookieTTL:    r.cookieTTL,
	}
	// POST /login - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(login,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{RegistrationService: r.RegistrationService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /refresh - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - requires an authenticated caller
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{LoginService: r.LoginService, CookieName: r.cookieName},
			r.authn(),
			httpx.RequireAuthentication(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /password - requires an authenticated caller
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(&PasswordHandler{RegistrationService: r.RegistrationService, TokenService: r.TokenService},
			r.authn(),
			httpx.RequireAuthentication(),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// POST /revoke - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/revoke",
		httpx.Chain(&RevokeHandler{TokenService: r.TokenService},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUserInfo() {
	r.Mux.Handle("GET /v1/userinfo",
		httpx.Chain(UserInfoHandler(),
			r.authn(),
			httpx.RequireAuthentication(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{
		RegistrationService: r.RegistrationService,
		Store:               r.store,
	}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			r.authn(),
			httpx.RequireAnyAuthority(service.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/admin/users", admin(http.HandlerFunc(h.HandleBulkRegister)))
	r.Mux.Handle("POST /v1/admin/users/{id}/disable", admin(http.HandlerFunc(h.HandleDisable)))
	r.Mux.Handle("POST /v1/admin/users/{id}/profile", admin(http.HandlerFunc(h.HandleAttachProfile)))
	r.Mux.Handle("GET /v1/admin/audit/{bucket}", admin(http.HandlerFunc(h.HandleAuditList)))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.sessions),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
