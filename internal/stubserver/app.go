package stubserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curalink/portal-core/internal/infrastructure/configs"
	jsonutil "github.com/curalink/portal-core/internal/infrastructure/json"
	"github.com/curalink/portal-core/internal/infrastructure/ratelimiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Application struct {
	config configs.HTTPConfig
	log    *zap.SugaredLogger

	hub          *Hub
	appointments *AppointmentStore
	messages     *MessageStore
	patients     *PatientStore
	ratelimiter  ratelimiter.Limiter
}

func NewApplication(config configs.HTTPConfig, log *zap.SugaredLogger) *Application {
	app := &Application{
		config:       config,
		log:          log,
		hub:          NewHub(log),
		appointments: NewAppointmentStore(),
		messages:     NewMessageStore(200),
		patients:     NewPatientStore(),
		ratelimiter:  ratelimiter.NewFixedWindow(50, time.Second),
	}

	go app.hub.Run()

	return app
}

// Hub exposes the broadcast side so fixtures and tests can push events.
func (app *Application) Hub() *Hub { return app.hub }

func (app *Application) Appointments() *AppointmentStore { return app.appointments }
func (app *Application) Messages() *MessageStore         { return app.messages }
func (app *Application) Patients() *PatientStore         { return app.patients }

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(app.rateLimiterMiddleware)

	r.Get("/ws", app.serveWS)

	r.Get("/patients/{patientId}", app.getPatientHandler)
	r.Delete("/appointments/{appointmentId}", app.cancelAppointmentHandler)
	r.Post("/appointments/{appointmentId}/reschedule", app.rescheduleAppointmentHandler)

	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "stubserver")
}

func (app *Application) rateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow, retryAfter := app.ratelimiter.Allow(r.RemoteAddr); !allow {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			jsonutil.WriteError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.Host, app.config.Port),
		Handler:      mux,
		WriteTimeout: app.config.WriteTimeout,
		ReadTimeout:  app.config.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.log.Infow("signal caught", "signal", s.String())

		app.hub.Close()
		shutdown <- srv.Shutdown(ctx)
	}()

	app.log.Infow("stub server has started", "addr", srv.Addr)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.log.Infow("stub server has stopped", "addr", srv.Addr)

	return nil
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
