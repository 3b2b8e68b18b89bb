package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-b2b/internal/audit"
	"github.com/noah-isme/backend-b2b/internal/auth"
	"github.com/noah-isme/backend-b2b/internal/cart"
	"github.com/noah-isme/backend-b2b/internal/catalog"
	"github.com/noah-isme/backend-b2b/internal/checkout"
	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/config"
	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/discount"
	"github.com/noah-isme/backend-b2b/internal/health"
	"github.com/noah-isme/backend-b2b/internal/obs"
	"github.com/noah-isme/backend-b2b/internal/order"
	"github.com/noah-isme/backend-b2b/internal/ratelimit"
	"github.com/noah-isme/backend-b2b/internal/reward"
	"github.com/noah-isme/backend-b2b/internal/security"
)

type routerDeps struct {
	cfg            *config.Config
	logger         zerolog.Logger
	redis          *redis.Client
	tracingEnabled bool

	auth      auth.Middleware
	audit     *audit.Service
	health    health.Handler
	catalog   *catalog.Handler
	customers *customer.Handler
	discounts *discount.Handler
	cart      *cart.Handler
	checkout  *checkout.Handler
	orders    *order.Handler
	rewards   *reward.Handler
}

func newRouter(d routerDeps) (http.Handler, error) {
	cfg := d.cfg

	globalLimit, err := ratelimit.NewGlobal(d.redis, cfg.GlobalRateLimit, "rl:global", func(err error) {
		d.logger.Warn().Err(err).Msg("global rate limiter unavailable")
	})
	if err != nil {
		return nil, err
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: d.redis, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.CustomerKey("checkout"),
			Window: cfg.CheckoutRateWindow,
			Max:    cfg.CheckoutRateLimit,
		},
		OnError: func(err error) { d.logger.Warn().Err(err).Msg("checkout rate limiter unavailable") },
	}
	idem := common.Idem{R: d.redis, TTL: cfg.IdempotencyTTL}
	adminOnly := auth.RequireRole(common.RoleAdmin)
	audited := audit.Recorder{Service: d.audit}.Middleware(audit.Route{IDParam: "id"})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMS)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health/live", d.health.Live)
	r.Get("/health/ready", d.health.Ready)
	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(globalLimit.Middleware)
		api.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		api.Use(d.auth.RequireAuth)

		api.Get("/products", d.catalog.Products)
		api.Get("/products/{id}/price", d.catalog.ProductPrice)
		api.Get("/customers/{id}", d.customers.Get)

		api.Get("/discounts", d.discounts.List)
		api.Get("/discounts/{id}", d.discounts.Get)
		api.Group(func(admin chi.Router) {
			admin.Use(adminOnly, idem.Middleware, audited)
			admin.Post("/discounts", d.discounts.Create)
			admin.Put("/discounts/{id}", d.discounts.Update)
		})

		api.Route("/cart", func(c chi.Router) {
			c.Get("/", d.cart.Get)
			c.Get("/discounts/{discountId}/claim", d.cart.ClaimState)
			c.Group(func(w chi.Router) {
				w.Use(idem.Middleware)
				w.Post("/items", d.cart.AddItem)
				w.Patch("/items/{itemId}", d.cart.UpdateItem)
				w.Delete("/items/{itemId}", d.cart.RemoveItem)
				w.Post("/discounts/{discountId}/claim", d.cart.Claim)
			})
		})

		api.With(checkoutLimit.Middleware, idem.Middleware).Post("/checkout", d.checkout.Checkout)

		api.Route("/orders", func(o chi.Router) {
			o.Get("/", d.orders.List)
			o.Get("/{id}", d.orders.Get)
			o.With(idem.Middleware).Post("/{id}/cancel", d.orders.Cancel)
			o.Group(func(admin chi.Router) {
				admin.Use(adminOnly, idem.Middleware, audited)
				admin.Patch("/{id}/status", d.orders.PatchStatus)
				admin.Post("/{id}/payments", d.orders.RecordPayment)
			})
		})

		api.Group(func(admin chi.Router) {
			admin.Use(adminOnly)
			admin.Get("/reward-tiers", d.rewards.ListTiers)
			admin.Get("/customer-rewards", d.rewards.List)
			admin.Get("/audit-logs", audit.Handler{Svc: d.audit}.List)
			admin.Group(func(w chi.Router) {
				w.Use(idem.Middleware, audited)
				w.Post("/reward-tiers", d.rewards.CreateTier)
				w.Put("/reward-tiers/{id}", d.rewards.UpdateTier)
				w.Post("/customer-rewards/calculate", d.rewards.Calculate)
				w.Post("/customer-rewards/process", d.rewards.Process)
				w.Patch("/customer-rewards/{id}/adjustment", d.rewards.SetAdjustment)
				w.Post("/customer-rewards/{id}/cancel", d.rewards.Cancel)
			})
		})
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
