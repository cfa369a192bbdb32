package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/gamified-web/internal/catalog"
	mw "finitefield.org/gamified-web/internal/middleware"
	"finitefield.org/gamified-web/internal/platform/config"
	"finitefield.org/gamified-web/internal/platform/kv"
	"finitefield.org/gamified-web/internal/platform/observability"
	"finitefield.org/gamified-web/internal/storefront"
	"finitefield.org/gamified-web/internal/view"
)

const requestTimeout = 30 * time.Second

// app holds the collaborators shared by every handler.
type app struct {
	registry *storefront.Registry
	renderer *view.Renderer
	sessions *mw.Sessions
	logger   *zap.Logger
	secure   bool
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx = observability.WithLogger(ctx, logger)

	cat := catalog.Load(ctx, catalog.Sources{
		DataPath:   cfg.Catalog.DataPath,
		MarkupPath: cfg.Catalog.MarkupPath,
	}, logger.Named("catalog"))

	storage, closeStorage, err := openStorage(ctx, cfg.Storage, logger.Named("kv"))
	if err != nil {
		return err
	}
	defer closeStorage()

	a, err := newApp(cat, storage, cfg, logger)
	if err != nil {
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	var sweepWG sync.WaitGroup
	if cfg.Session.SweepInterval > 0 {
		sweepWG.Add(1)
		go func() {
			defer sweepWG.Done()
			a.sweepLoop(sweepCtx, cfg.Session.SweepInterval, cfg.Session.IdleTTL)
		}()
	}
	defer func() {
		stopSweep()
		sweepWG.Wait()
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Server.Environment),
			zap.String("storage", cfg.Storage.Backend),
			zap.Int("products", cat.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newApp(cat *catalog.Catalog, storage kv.Storage, cfg config.Config, logger *zap.Logger) (*app, error) {
	registry, err := storefront.NewRegistry(storefront.RegistryDeps{
		Catalog: cat,
		Storage: storage,
		Logger:  logger.Named("storefront"),
	})
	if err != nil {
		return nil, err
	}
	renderer, err := view.New(cat, view.WithLogger(logger.Named("view")))
	if err != nil {
		return nil, err
	}
	return &app{
		registry: registry,
		renderer: renderer,
		sessions: mw.NewSessions(mw.SessionOptions{
			SigningKey: []byte(cfg.Session.SigningKey),
			Secure:     cfg.Server.Production(),
			Logger:     logger.Named("session"),
		}),
		logger: logger,
		secure: cfg.Server.Production(),
	}, nil
}

func (a *app) sweepLoop(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := a.registry.Sweep(ctx, idle); removed > 0 {
				a.logger.Debug("swept idle sessions", zap.Int("removed", removed), zap.Int("active", a.registry.Len()))
			}
		}
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.InjectLoggerMiddleware(a.logger))
	r.Use(observability.RecoveryMiddleware(a.logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(view.Assets()))))

	r.Group(func(r chi.Router) {
		r.Use(a.sessions.Middleware)
		r.Use(observability.RequestLoggerMiddleware)
		r.Use(mw.HTMX)
		r.Use(mw.CSRF(a.secure))

		r.Get("/", a.handleHome)
		r.Get("/catalog/cards", a.handleCards)

		r.Post("/cart/items/{id}", a.handleAddToCart)
		r.Post("/cart/items/{id}/inc", a.handleCartLine(func(id string) storefront.Command { return storefront.IncrementQty{ProductID: id} }))
		r.Post("/cart/items/{id}/dec", a.handleCartLine(func(id string) storefront.Command { return storefront.DecrementQty{ProductID: id} }))
		r.Post("/cart/items/{id}/remove", a.handleCartLine(func(id string) storefront.Command { return storefront.RemoveFromCart{ProductID: id} }))
		r.Post("/cart/items/{id}/qty", a.handleSetQuantity)
		r.Get("/cart", a.handleCartPage)
		r.Get("/cart/list", a.handleCartList)
		r.Post("/checkout", a.handleCheckout)
		r.Get("/buy", a.handleBuy)

		r.Get("/trailer/{id}", a.handleOpenTrailer)
		r.Post("/trailer/close", a.handleCloseTrailer)
		r.Post("/trailer/key", a.handleTrailerKey)

		r.Post("/theme/toggle", a.handleToggleTheme)

		r.Get("/signup", a.handleAccountForm(modeSignup))
		r.Post("/signup", a.handleSignup)
		r.Get("/login", a.handleAccountForm(modeLogin))
		r.Post("/login", a.handleLogin)
		r.Post("/logout", a.handleLogout)

		r.Get("/api/store", a.handleStoreAPI)
		r.Post("/api/store/cart/{id}", a.handleStoreAPIAdd)
	})
	return r
}
