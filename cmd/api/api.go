package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storepay/internal/gateway"
	"storepay/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config      config
	logger      *zap.SugaredLogger
	gateways    *gateway.Router
	rateLimiter ratelimiter.Limiter
}

type config struct {
	addr        string
	env         string
	apiURL      string // public base URL, used to build webhook callback URLs
	frontendURL string
	auth        authConfig
	rateLimiter rateLimiterConfig
	razorpay    gateway.RazorpayConfig
	phonepe     phonePeConfig
	cashfree    gateway.CashfreeConfig
}

type rateLimiterConfig struct {
	requestsPerTimeFrame int
	timeFrame            time.Duration
	enabled              bool
}

type authConfig struct {
	basic basicConfig
}

type basicConfig struct {
	user string
	pass string
}

// phonePeConfig carries both authentication variants; authMode picks the
// one this deployment uses.
type phonePeConfig struct {
	authMode string // "salt" or "oauth"
	salt     gateway.PhonePeConfig
	oauth    gateway.PhonePeOAuthConfig
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)

		r.Route("/payments", func(r chi.Router) {
			r.Use(app.RateLimiterMiddleware)
			r.Post("/orders", app.createOrderHandler)
			r.Post("/verify", app.verifyPaymentHandler)
			r.Post("/refunds", app.refundHandler)
			r.Get("/{gateway}/{id}/status", app.paymentStatusHandler)
		})

		// Gateways retry webhooks aggressively on non-200, so these
		// endpoints always acknowledge; see gatewayWebhookHandler.
		r.Post("/webhooks/{gateway}", app.gatewayWebhookHandler)
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
