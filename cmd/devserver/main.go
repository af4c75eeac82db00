package main

import (
	"expvar"
	"log"
	"runtime"

	"github.com/curalink/portal-core/internal/infrastructure/configs"
	"github.com/curalink/portal-core/internal/infrastructure/logging"
	"github.com/curalink/portal-core/internal/stubserver"
	"go.uber.org/zap"
)

// devserver runs the in-process clinic backend used for local development
// and the end-to-end tests: websocket hub, CRUD endpoints and seed data.
func main() {
	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	configPath := configs.DeterminePath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	journal := logging.NewLogger(logging.NewDefaultConfig())
	journal.Info(logging.General, logging.Startup, "dev server starting", map[logging.ExtraKey]any{
		logging.AppName: "portal-devserver",
	})

	app := stubserver.NewApplication(cfg.HTTP, logger)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
