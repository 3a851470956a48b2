package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pep-dortmund/member-database/internal/authz"
	eventshandler "github.com/pep-dortmund/member-database/internal/events/handler"
	"github.com/pep-dortmund/member-database/internal/events/service"
	eventsstore "github.com/pep-dortmund/member-database/internal/events/store"
	"github.com/pep-dortmund/member-database/internal/mail"
	"github.com/pep-dortmund/member-database/internal/members"
	membershandler "github.com/pep-dortmund/member-database/internal/members/handler"
	"github.com/pep-dortmund/member-database/internal/platform/bootstrap"
	"github.com/pep-dortmund/member-database/internal/platform/config"
	"github.com/pep-dortmund/member-database/internal/platform/database"
	"github.com/pep-dortmund/member-database/internal/platform/httpserver"
	"github.com/pep-dortmund/member-database/internal/platform/logger"
	"github.com/pep-dortmund/member-database/internal/platform/metrics"
	"github.com/pep-dortmund/member-database/internal/platform/middleware"
	"github.com/pep-dortmund/member-database/internal/platform/tracer"
	"github.com/pep-dortmund/member-database/internal/token"
	"github.com/pep-dortmund/member-database/internal/transport/httpjson"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing member database", "addr", cfg.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: Postgres when DATABASE_URL is set, memory otherwise.
	var (
		persons    members.PersonStore
		events     eventsstore.Store
		organizers authz.OrganizerStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		if err := bootstrap.New(pool, log).Run(ctx); err != nil {
			log.Error("bootstrap failed", "error", err)
			os.Exit(1)
		}

		persons = members.NewPostgresStore(pool)
		events = eventsstore.NewPostgresStore(pool)
		organizers = authz.NewPostgresStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		memPersons := members.NewInMemoryStore()
		persons = memPersons
		events = eventsstore.NewInMemoryStore(memPersons)
		organizers = authz.NewInMemoryStore()
	}

	m := metrics.New()

	var sender mail.Sender
	if cfg.SMTPAddr != "" {
		sender = mail.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword)
	} else {
		log.Warn("SMTP_ADDR not set, outbound mail is logged only")
		sender = &mail.LogSender{Logger: log}
	}
	notifier := mail.NewNotifier(sender,
		mail.WithLogger(log),
		mail.WithMetrics(m),
		mail.WithMaxAttempts(cfg.MailMaxAttempts),
		mail.WithBackoff(cfg.MailInitialDelay, 5*time.Minute),
	)
	go func() {
		if err := notifier.Start(ctx); err != nil {
			log.Error("mail notifier stopped", "error", err)
		}
	}()

	tokens := token.New(cfg.SecretKey)
	auth := authz.CapabilityAuthorizer{}
	workflow := service.NewService(events, persons, tokens, notifier, service.Config{
		BaseURL:                 cfg.BaseURL,
		MailSender:              cfg.MailSender,
		InstitutionalMailDomain: cfg.InstitutionalDomain,
	},
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithTracer(tracer.NewOTel()),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(cfg.RequestTimeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(authz.Authenticate(organizers))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	eventshandler.New(workflow, auth, log, m).Register(router)
	membershandler.New(persons, auth, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
