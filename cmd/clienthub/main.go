package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/app/controllers"
	"github.com/ManuelReschke/ClientHub/app/repository"
	"github.com/ManuelReschke/ClientHub/docs"
	"github.com/ManuelReschke/ClientHub/internal/pkg/archive"
	"github.com/ManuelReschke/ClientHub/internal/pkg/billing"
	"github.com/ManuelReschke/ClientHub/internal/pkg/cache"
	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
	"github.com/ManuelReschke/ClientHub/internal/pkg/database"
	"github.com/ManuelReschke/ClientHub/internal/pkg/env"
	"github.com/ManuelReschke/ClientHub/internal/pkg/esign"
	"github.com/ManuelReschke/ClientHub/internal/pkg/locker"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
	"github.com/ManuelReschke/ClientHub/internal/pkg/mail"
	"github.com/ManuelReschke/ClientHub/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
	"github.com/ManuelReschke/ClientHub/internal/pkg/reconcile"
	"github.com/ManuelReschke/ClientHub/internal/pkg/router"
	"github.com/ManuelReschke/ClientHub/internal/pkg/secrets"
)

func main() {
	env.SetupEnvFile()
	cfg := config.Load()

	log := logger.New(logger.Options{
		FilePath:   cfg.Log.FilePath,
		Level:      cfg.Log.Level,
		Production: cfg.IsProduction(),
	})
	defer func() { _ = log.Sync() }()

	app, queue, err := NewApplication(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("could not start application", zap.Error(err))
	}

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
		log.Info("listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	// Queued notifications live in memory only; flush what is due.
	if err := queue.Wait(ctx); err != nil {
		log.Warn("notification drain cut short", zap.Error(err), zap.Int("notifications_left", queue.Stats().Pending))
		return
	}
	report := queue.Drain(ctx)
	log.Info("stopped", zap.Int("notifications_sent", report.Sent), zap.Int("notifications_left", queue.Stats().Pending))
}

// NewApplication wires storage, the notification queue and both reconcilers
// into a Fiber app.
func NewApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (*fiber.App, *notify.Queue, error) {
	db, err := database.SetupDatabase(cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	redisClient := cache.SetupCache(cfg.Cache, log)

	var (
		lock         locker.Locker    = locker.NewRedisLocker(redisClient, cfg.Webhook.LockTTL)
		deliveries   counter.Recorder = counter.NewRedis(redisClient)
		limitStorage fiber.Storage
	)
	if err := cache.Ping(ctx); err != nil {
		log.Warn("redis unavailable, using in-process locks, counters and rate limits", zap.Error(err))
		lock = locker.NewMemoryLocker()
		deliveries = counter.NewMemory()
	} else {
		limitStorage = router.NewLimiterStorage(cfg.Cache)
	}

	repos := repository.NewRepositories(db)
	resolver := secrets.NewResolver(secrets.NewSettingsSource(repos.Setting), secrets.EnvSource{})

	renderer, err := notify.NewRenderer(notify.RendererOptions{BaseURL: cfg.App.BaseURL})
	if err != nil {
		return nil, nil, err
	}
	queue := notify.NewQueue(renderer, mail.NewTransport(cfg.SMTP, log), log, notify.QueueOptions{
		From:            cfg.Mail.From,
		ReplyTo:         cfg.Mail.ReplyTo,
		SendDelay:       cfg.Notify.SendDelay,
		DigestThreshold: cfg.Notify.DigestThreshold,
		AutoDrain:       cfg.Notify.AutoDrain,
	})
	admins := notify.NewAdminDirectory(repos.User, cfg.Mail.AdminRecipients)

	esignDeps := esign.Deps{
		Locker:   lock,
		Notifier: queue,
		Admins:   admins,
		Log:      log,
		BaseURL:  cfg.App.BaseURL,
	}
	if cfg.Archive.Enabled {
		a, err := archive.NewS3Archive(ctx, cfg.Archive, log)
		if err != nil {
			return nil, nil, err
		}
		esignDeps.Archive = a
	}

	billingSvc := billing.NewServiceFromDB(db, billing.Deps{
		Locker:    lock,
		Notifier:  queue,
		Admins:    admins,
		Customers: billing.NewStripeCustomers(resolver),
		Log:       log,
		BaseURL:   cfg.App.BaseURL,
	})
	esignSvc := esign.NewServiceFromDB(db, esignDeps)

	webhooks := controllers.NewWebhookController(controllers.WebhookDeps{
		Billing:       billingSvc,
		Esign:         esignSvc,
		Journal:       reconcile.NewJournal(db),
		Secrets:       resolver,
		Timeout:       cfg.Webhook.Timeout,
		DefaultTenant: cfg.Webhook.DefaultTenant,
		Counter:       deliveries,
		Log:           log,

		RequireConnectSignature: cfg.Webhook.RequireConnectSignature,
	})

	app := fiber.New(fiber.Config{
		AppName:   "ClientHub",
		BodyLimit: 4 * 1024 * 1024,
	})
	app.Use(recover.New(), fiberlogger.New())

	if _, err := docs.Load(ctx); err != nil {
		log.Warn("openapi document is invalid", zap.Error(err))
	}
	if path := findFile("docs/openapi.yml"); path != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/",
			FilePath: path,
			Path:     "api",
		}))
	} else {
		log.Warn("openapi document not found, /docs/api disabled")
	}

	router.InstallRouter(app,
		router.NewHealthRouter(queue.Stats, deliveries),
		router.NewWebhookRouter(webhooks, cfg.Webhook, limitStorage),
	)

	return app, queue, nil
}

// findFile looks for rel relative to the working directory and the project
// root when started from cmd/clienthub.
func findFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
