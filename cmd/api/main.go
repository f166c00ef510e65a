package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/scheduling-ai/cmd/mainconfig"
	"github.com/clinicflow/scheduling-ai/internal/api/router"
	"github.com/clinicflow/scheduling-ai/internal/bookings"
	appconfig "github.com/clinicflow/scheduling-ai/internal/config"
	"github.com/clinicflow/scheduling-ai/internal/export"
	"github.com/clinicflow/scheduling-ai/internal/extract"
	"github.com/clinicflow/scheduling-ai/internal/http/handlers"
	"github.com/clinicflow/scheduling-ai/internal/jobs"
	"github.com/clinicflow/scheduling-ai/internal/notify"
	"github.com/clinicflow/scheduling-ai/internal/observability/metrics"
	"github.com/clinicflow/scheduling-ai/internal/patients"
	"github.com/clinicflow/scheduling-ai/internal/reminders"
	"github.com/clinicflow/scheduling-ai/internal/session"
	"github.com/clinicflow/scheduling-ai/internal/slots"
	"github.com/clinicflow/scheduling-ai/internal/workflow"
	"github.com/clinicflow/scheduling-ai/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Session store
	var sessionStore session.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		sessionStore = session.NewRedisStore(client, cfg.SessionTTL)
		logger.Info("sessions backed by redis", "addr", cfg.RedisAddr)
	} else {
		sessionStore = session.NewMemoryStore()
	}

	// Patient records
	var patientRepo patients.Repository
	if cfg.DatabaseURL != "" {
		pool, perr := pgxpool.New(ctx, cfg.DatabaseURL)
		if perr != nil {
			logger.Error("failed to open patient database", "error", perr)
			os.Exit(1)
		}
		defer pool.Close()
		patientRepo = patients.NewPostgresRepository(pool)
		logger.Info("patients backed by postgres")
	} else {
		patientRepo = patients.NewInMemoryRepository()
	}

	bookingRepo := bookings.NewMemoryRepository()
	calendar := slots.NewMemoryCalendar(nil)

	// Appointment data export
	var exporter export.Exporter
	if cfg.DatabaseURL != "" {
		db, derr := sql.Open("postgres", cfg.DatabaseURL)
		if derr != nil {
			logger.Error("failed to open export database", "error", derr)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		exporter = export.NewPostgresExporter(db)
	} else {
		exporter = export.NewCSVExporter(cfg.ExportCSVPath)
	}

	// Notifications
	emailSender := buildEmailSender(cfg, awsCfg, logger)
	notifier := notify.NewService(emailSender, notify.NewStubSMSSender(logger), logger)

	// Reminders
	reminderStore := reminders.NewMemoryStore()
	scheduler := reminders.NewScheduler(reminderStore, cfg.ReminderOffsets, logger)
	reminderWorker := reminders.NewWorker(reminderStore, bookingRepo, notifier, logger).
		WithInterval(cfg.ReminderPollInterval)
	go reminderWorker.Run(ctx)

	exportWorker := export.NewRetryWorker(bookingRepo, exporter, logger).
		WithInterval(cfg.ExportRetryInterval)
	go exportWorker.Run(ctx)

	// Async jobs
	var queue jobs.Queue
	if cfg.UseMemoryQueue {
		queue = jobs.NewMemoryQueue(64)
	} else {
		queue = jobs.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.WorkflowQueueURL)
	}
	dispatcher := jobs.NewDispatcher(queue, cfg.WorkerCount, logger)
	dispatcher.Register(jobs.KindExport, func(ctx context.Context, job jobs.Job) error {
		b, err := bookingRepo.Get(ctx, job.BookingID)
		if err != nil {
			return err
		}
		if err := exporter.Export(ctx, *b); err != nil {
			return err
		}
		return bookingRepo.MarkExported(ctx, b.ID)
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Escalation handoffs
	var handoffs workflow.HandoffStore
	if cfg.HandoffTable != "" && !cfg.UseMemoryQueue {
		handoffs = workflow.NewDynamoHandoffStore(dynamodb.NewFromConfig(awsCfg), cfg.HandoffTable, logger)
		logger.Info("handoffs backed by dynamodb", "table", cfg.HandoffTable)
	} else {
		handoffs = workflow.NewMemoryHandoffStore()
	}

	extractor := buildExtractor(ctx, cfg, awsCfg, logger)

	engine := workflow.NewEngine(workflow.Config{
		RetryThreshold:      cfg.RetryThreshold,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
		SlotLookahead:       time.Duration(cfg.SlotLookaheadDays) * 24 * time.Hour,
		SlotTopN:            cfg.SlotTopN,
	}, workflow.Deps{
		Sessions:  sessionStore,
		Patients:  patientRepo,
		Finder:    calendar,
		Bookings:  bookingRepo,
		Extractor: extractor,
		Notifier:  notifier,
		Reminders: scheduler,
		Jobs:      dispatcher,
		Handoffs:  handoffs,
		Metrics:   metrics.NewWorkflowMetrics(nil),
		Logger:    logger,
	})

	r := router.New(&router.Config{
		Logger:          logger,
		SessionsHandler: handlers.NewSessionsHandler(engine, logger),
		BookingsHandler: handlers.NewBookingsHandler(engine, logger),
		MetricsHandler:  promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid not configured, falling back to stub email sender")
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("ses not configured, falling back to stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

func buildExtractor(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) extract.Extractor {
	switch cfg.ExtractorBackend {
	case "gemini":
		client, err := extract.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to init gemini client, using rule extraction", "error", err)
			return extract.NewRuleExtractor()
		}
		return extract.NewLLMExtractor(client, cfg.GeminiModelID, logger)
	case "bedrock":
		if cfg.BedrockModelID == "" {
			logger.Error("BEDROCK_MODEL_ID not set, using rule extraction")
			return extract.NewRuleExtractor()
		}
		client := extract.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		return extract.NewLLMExtractor(client, cfg.BedrockModelID, logger)
	default:
		return extract.NewRuleExtractor()
	}
}
