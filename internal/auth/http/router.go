package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"

	_ "github.com/aussiebroadwan/bookshelf/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	handler     http.Handler

	ring         *jwtx.SecretRing
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	AuthService      *service.AuthService
	AccountService   *service.AccountService
	BootstrapService *service.BootstrapService
}

func NewRouter(
	ring *jwtx.SecretRing,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		ring:         ring,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "auth") },
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerAccounts()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	r.handler = httpx.Chain(r.Mux, r.middlewares...)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Bookshelf Authentication Service API
//	@version		0.1.0
//	@description	Credential login and session lifecycle for the bookshelf backend.
//	@description
//	@description				Access and refresh tokens are HS256 JWTs. Refresh tokens are single use and rotate on every refresh.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/bookshelf
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
	if r.handler == nil {
		httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
		return
	}
	r.handler.ServeHTTP(w, req)
}

// authenticated resolves the bearer token through full access-token
// validation, re-checking the account on every request.
func (r *Router) authenticated() httpx.Middleware {
	return httpx.AuthnMiddleware(httpx.AuthenticatorFunc(r.validateBearer), r.authnError)
}

// tokenOnly checks the token signature and claims but not the account, so a
// locked or suspended account can still end its own sessions.
func (r *Router) tokenOnly() httpx.Middleware {
	return httpx.AuthnMiddleware(httpx.AuthenticatorFunc(r.decodeBearer), r.authnError)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService}

	// Login is limited per IP and, more tightly, per IP + identifier to slow
	// password guessing against one account.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.ModerateLimit),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "identifier"),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.tokenOnly(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutAll),
			r.tokenOnly(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout-others",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutOthers),
			r.tokenOnly(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /v1/auth/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			r.authenticated(),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{AuthService: r.AuthService}

	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.authenticated(),
			httpx.RequireAnyScope(domain.PermSessionsRead),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/sessions/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.authenticated(),
			httpx.RequireAnyScope(domain.PermSessionsWrite),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAccounts() {
	h := &AccountsHandler{AccountService: r.AccountService}

	admin := func(fn http.HandlerFunc, scope string) http.Handler {
		return httpx.Chain(fn,
			r.authenticated(),
			httpx.RequireAnyScope(scope),
			httpx.RequireVerifiedEmail(),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/accounts", admin(h.HandleCreate, domain.PermAccountsWrite))
	r.Mux.Handle("GET /v1/accounts/{id}", admin(h.HandleGet, domain.PermAccountsRead))
	r.Mux.Handle("PUT /v1/accounts/{id}/state", admin(h.HandleSetState, domain.PermAccountsWrite))
	r.Mux.Handle("POST /v1/accounts/{id}/unlock", admin(h.HandleUnlock, domain.PermAccountsWrite))
	r.Mux.Handle("PUT /v1/accounts/{id}/two-factor", admin(h.HandleSetTwoFactor, domain.PermAccountsWrite))
	r.Mux.Handle("PUT /v1/accounts/{id}/email-verified", admin(h.HandleSetEmailVerified, domain.PermAccountsWrite))
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.ring),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
