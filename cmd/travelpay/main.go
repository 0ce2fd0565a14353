package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"travelpay/internal/config"
	"travelpay/internal/database"
	"travelpay/internal/handler"
	"travelpay/internal/mw"
	"travelpay/internal/sanitize"
	"travelpay/internal/service"
	"travelpay/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(ctx, db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	if cfg.PayHereSecret == "" {
		slog.Warn("PayHere merchant secret not set, PayHere checkout is disabled")
	}

	// Services
	store := service.NewPaymentStore(db)
	payHere := service.NewPayHere(cfg.PayHereMerchantID, cfg.PayHereSecret, store, sanitize.Text)
	payPalClient := service.NewPayPalClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	payPal := service.NewPayPal(payPalClient, store, cfg.PayPalCurrency, sanitize.Text)
	reconciler := service.NewReconciler(payHere, payPal, store)

	sessions := mw.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies)
	limiter := mw.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)

	// Worker
	sweeper := worker.NewSweeper(store, cfg.SweepInterval, cfg.StaleAfter)

	r := newRouter(cfg, reconciler, sessions, limiter)

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop sweeper
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}

func newRouter(cfg *config.Config, svc handler.Payments, sessions *mw.Sessions, limiter *mw.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	// Forwarded headers are client-controlled unless a proxy in front rewrites them,
	// and the rate limiter keys on RemoteAddr.
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", mw.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/api/payments", handler.PaymentRoutes(svc, sessions, limiter))
	return r
}
