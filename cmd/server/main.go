package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bullion/compliance-service/internal/api"
	"github.com/bullion/compliance-service/internal/calendar"
	"github.com/bullion/compliance-service/internal/config"
	"github.com/bullion/compliance-service/internal/currency"
	"github.com/bullion/compliance-service/internal/deadline"
	"github.com/bullion/compliance-service/internal/identity"
	"github.com/bullion/compliance-service/internal/investigation"
	"github.com/bullion/compliance-service/internal/monitor"
	"github.com/bullion/compliance-service/internal/notification"
	"github.com/bullion/compliance-service/internal/pkg/clock"
	"github.com/bullion/compliance-service/internal/pkg/logger"
	"github.com/bullion/compliance-service/internal/pricefeed"
	"github.com/bullion/compliance-service/internal/reporting"
	"github.com/bullion/compliance-service/internal/repository"
	"github.com/bullion/compliance-service/internal/repository/memory"
	"github.com/bullion/compliance-service/internal/repository/postgres"
	"github.com/bullion/compliance-service/internal/telemetry"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	os.Exit(finish(log, err))
}

// finish logs how the service stopped, flushes the logger and returns the
// process exit code.
func finish(log *logger.Logger, err error) int {
	code := 0
	if err != nil {
		log.Error("service stopped with error", zap.Error(err))
		code = 1
	} else {
		log.Info("Server exited properly")
	}
	_ = log.Sync()
	return code
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// 3. Telemetry
	tp, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	loc, err := cfg.Compliance.Location()
	if err != nil {
		return fmt.Errorf("load reference time zone %q: %w", cfg.Compliance.Timezone, err)
	}
	holidays, err := calendar.ParseMonthDays(cfg.Compliance.FixedHolidays)
	if err != nil {
		return fmt.Errorf("parse fixed holidays: %w", err)
	}
	clk := clock.New()

	// 4. Storage
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. Outbound integrations
	sender, closeSender, err := openSender(cfg, clk, log)
	if err != nil {
		return err
	}
	defer closeSender()

	claimer, closeClaimer, err := openClaimer(ctx, cfg, clk, log)
	if err != nil {
		return err
	}
	defer closeClaimer()

	feed := pricefeed.NewClient(pricefeed.Config{
		BaseURL:          cfg.PriceFeed.BaseURL,
		APIKey:           cfg.PriceFeed.APIKey,
		Timeout:          cfg.PriceFeed.Timeout,
		BreakerFailures:  cfg.PriceFeed.BreakerFailures,
		BreakerOpenDelay: cfg.PriceFeed.BreakerOpenDelay,
	}, &http.Client{Timeout: cfg.PriceFeed.Timeout}, log)

	// 6. Services
	cal := calendar.New(loc, holidays, clk)
	deadlines := deadline.NewCalculator(cal)
	directory := notification.NewDirectory(cfg.Compliance.StaffRecipients, cfg.Compliance.ManagementContact, store)
	normalizer := currency.NewNormalizer(feed, store, clk, currency.Config{
		Timeout:     cfg.PriceFeed.Timeout,
		MaxCacheAge: cfg.PriceFeed.MaxCacheAge,
	}, log)

	reports := reporting.NewService(store, store, store, store, normalizer, deadlines, sender, directory, clk, reporting.Config{
		ReportingCurrency: cfg.Compliance.ReportingCurrency,
		TTRThreshold:      cfg.Compliance.TTRThreshold,
		Location:          loc,
	}, log)
	investigations := investigation.NewService(store, store, reports, sender, directory, clk, loc, log)
	deadlineMonitor := monitor.NewMonitor(store, store, store, cal, sender, directory, claimer, clk, monitor.Config{
		TTRWindow:     cfg.Compliance.TTRAlertWindow,
		TTRUrgentDays: cfg.Compliance.TTRUrgentDays,
		SMRWindow:     cfg.Compliance.SMRAlertWindow,
		SMRUrgentDays: cfg.Compliance.SMRUrgentDays,
		ClaimTTL:      cfg.Monitor.ClaimTTL,
	}, log)

	// 7. HTTP server
	resolver := identity.NewJWTResolver(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	handler := api.NewHandler(investigations, reports, deadlineMonitor, log)
	e := api.NewServer(cfg, handler, resolver, log)
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server started", zap.String("addr", serverAddr))
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	// 8. Deadline monitor schedule
	if cfg.Monitor.Enabled {
		scheduler, err := monitor.NewScheduler(deadlineMonitor, cfg.Monitor.Schedule, loc, cfg.Monitor.SweepTimeout, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if cfg.Storage.RunMigrations {
			if err := postgres.RunMigrations(ctx, pool, log); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return postgres.NewDatabase(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func openSender(cfg *config.Config, clk clock.Clock, log *logger.Logger) (notification.Sender, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("no kafka brokers configured; notifications are logged only")
		return notification.NewLogSender(log), func() {}, nil
	}

	producer, err := notification.NewKafkaProducer(cfg.Kafka.Brokers,
		notification.NewSaramaConfig(cfg.Kafka.ClientID, cfg.Notification.Timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	sender := notification.NewKafkaSender(producer, cfg.Kafka.NotificationsTopic, cfg.Notification.Timeout, clk, log)
	return sender, func() {
		if err := sender.Close(); err != nil {
			log.Warn("kafka producer close failed", zap.Error(err))
		}
	}, nil
}

func openClaimer(ctx context.Context, cfg *config.Config, clk clock.Clock, log *logger.Logger) (monitor.AlertClaimer, func(), error) {
	if !cfg.Redis.Enabled {
		return monitor.NewLocalClaimer(clk), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return monitor.NewRedisClaimer(client, "compliance:deadline-alert:"), func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}
