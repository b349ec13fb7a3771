package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/database"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/mailer"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/queue"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/router"
	"github.com/iliyamo/tour-booking/internal/service"
	"github.com/iliyamo/tour-booking/internal/view"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = database.Migrate(migrateCtx, db)
	cancel()
	if err != nil {
		return err
	}
	log.Info().Msg("DB connection successful!")

	var cache *middleware.ResponseCache
	rdb, err := config.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable; cache disabled, rate limiting in-process")
	} else {
		defer rdb.Close()
		cache = middleware.NewResponseCache(cfg.Cache, rdb)
	}

	mail, err := mailer.New(cfg.Mail)
	if err != nil {
		return err
	}

	jobs := queue.NewJobHandlers(mail, cfg.LogDir)
	var publisher queue.Publisher = queue.InlinePublisher{Handlers: jobs}
	if cfg.AMQPURL != "" {
		amqpPub := queue.NewAMQPPublisher(cfg.AMQPURL)
		defer amqpPub.Close()
		publisher = amqpPub
		go func() {
			if err := queue.StartConsumer(ctx, cfg.AMQPURL, jobs); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("queue consumer stopped")
			}
		}()
	}
	events := service.NewNotifier(publisher)

	users := repository.NewUserRepo(db)
	tours := repository.NewTourRepo(db)
	reviews := repository.NewReviewRepo(db)
	bookings := repository.NewBookingRepo(db)

	auth := service.NewAuthService(cfg, users, mail, events)
	ratings := service.NewRatingService(reviews, tours, cache)

	renderer, err := view.New()
	if err != nil {
		return err
	}

	e := router.New(router.Deps{
		Cfg:       cfg,
		RateLimit: cfg.RateLimit,
		Cache:     cache,
		Redis:     rdb,
		Auth:      auth,
		DB:        db,
		Renderer:  renderer,
		AuthH:     handler.NewAuthHandler(cfg, auth),
		Users:     handler.NewUserHandler(users, cfg.BcryptCost),
		Tours:     handler.NewTourHandler(tours, users, reviews, cache),
		Reviews:   handler.NewReviewHandler(reviews, tours, ratings),
		Bookings:  handler.NewBookingHandler(bookings, tours, users, payment.NewStripeCheckout(cfg.Stripe), events, cfg.BaseURL),
		Views:     handler.NewViewHandler(tours, reviews, bookings),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
