package main

import (
	"context"
	"expvar"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/curalink/portal-core/internal/domain"
	"github.com/curalink/portal-core/internal/infrastructure/configs"
	"github.com/curalink/portal-core/internal/infrastructure/env"
	"github.com/curalink/portal-core/internal/infrastructure/logging"
	"github.com/curalink/portal-core/internal/infrastructure/tracing"
	"github.com/curalink/portal-core/internal/notify"
	"github.com/curalink/portal-core/internal/portal"
	"github.com/curalink/portal-core/internal/portalapi"
	"github.com/curalink/portal-core/internal/socket"
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DeterminePath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	shutdownTracer, err := tracing.InitTracer(tracing.NewDefaultConfig("portal-core"))
	if err != nil {
		logger.Warnw("tracing disabled", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownTracer(ctx)
		}()
	}

	patientID := env.GetString("PORTAL_PATIENT_ID", "")
	if patientID == "" {
		log.Fatal("PORTAL_PATIENT_ID is required")
	}

	viewer := domain.Role(env.GetString("PORTAL_ROLE", string(domain.RolePatient)))
	if !viewer.Valid() {
		log.Fatalf("invalid PORTAL_ROLE %q", viewer)
	}

	mgr := socket.NewManager(socket.ManagerConfig{
		URL:              cfg.Socket.URL,
		HandshakeTimeout: cfg.Socket.HandshakeTimeout,
		ReconnectInitial: cfg.Socket.ReconnectInitial,
		ReconnectMax:     cfg.Socket.ReconnectMax,
	}, logger)

	api := portalapi.NewClient(portalapi.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Token:   cfg.API.Token,
	})

	// Alerts go to the rotating structured journal so the notification history
	// survives restarts.
	journal := logging.NewLogger(logging.NewDefaultConfig())
	journal.Info(logging.General, logging.Startup, "portal core starting", map[logging.ExtraKey]any{
		logging.AppName:   "portal-core",
		logging.PatientID: patientID,
	})

	sink := notify.SinkFunc(func(a notify.Alert) {
		journal.Info(logging.Notify, logging.Delivery, a.Title, map[logging.ExtraKey]any{
			logging.EventName: string(a.Kind),
			logging.PatientID: a.PatientID,
		})
	})

	session := portal.NewSession(portal.Config{
		PatientID: patientID,
		DoctorID:  env.GetString("PORTAL_DOCTOR_ID", ""),
		Viewer:    viewer,
		JoinWait:  cfg.Socket.JoinWait,
		Queue: socket.QueueConfig{
			AckTimeout: cfg.Queue.AckTimeout,
			RetryBase:  cfg.Queue.RetryBase,
			RetryMax:   cfg.Queue.RetryMax,
			MaxRetries: cfg.Queue.MaxRetries,
			StaleAfter: cfg.Queue.StaleAfter,
			SweepEvery: cfg.Queue.SweepEvery,
		},
	}, mgr, api, sink, logger)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := session.Start(ctx); err != nil {
		logger.Fatalw("session start failed", "err", err)
	}
	defer session.Close()

	logger.Infow("session running", "patient", patientID, "viewer", viewer)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	journal.Info(logging.General, logging.Shutdown, "portal core stopping", nil)
	logger.Info("shutting down")
}
