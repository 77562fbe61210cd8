package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/config"
	"github.com/sells-group/source-matcher/internal/metrics"
	"github.com/sells-group/source-matcher/internal/resilience"
	"github.com/sells-group/source-matcher/internal/trace"
	"github.com/sells-group/source-matcher/pkg/registrar"
)

// verificationPath is the route upstream bots post reconciliation requests to.
const verificationPath = "/sourceMatcher/fileVerification"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env := initEngine(cfg)
		defer env.Close()

		port := resolvePort(servePort, cfg.Server.Port)
		handler := buildMux(env.Engine, muxOptions{
			Metrics:     cfg.Metrics.Enabled,
			CORSOrigins: cfg.Server.CORSOrigins,
			Breakers:    env.Breakers,
		})

		if cfg.Registry.ConsulAddr != "" {
			reg, err := registrar.New(registrar.Options{
				ConsulAddr:  cfg.Registry.ConsulAddr,
				ServiceName: cfg.Registry.ServiceName,
				AdvertiseIP: cfg.Registry.AdvertiseIP,
				Port:        port,
				HealthPath:  "/health",
			})
			if err != nil {
				return err
			}
			if err := reg.Register(); err != nil {
				return err
			}
			zap.L().Info("registered with consul", zap.String("service_id", reg.ID()))
			defer func() {
				if err := reg.Deregister(); err != nil {
					zap.L().Warn("consul deregister failed", zap.Error(err))
				}
			}()
		}

		return startServer(ctx, handler, port, cfg.Server)
	},
}

// muxOptions toggles the optional parts of the router.
type muxOptions struct {
	Metrics     bool
	CORSOrigins []string
	// Breakers, when set, are reported by /health.
	Breakers *resilience.Breakers
}

// buildMux wires the routes. Both spellings of the verification path are
// served.
func buildMux(engine reconciler, opts muxOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(trace.Middleware)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", trace.HeaderTraceID, trace.HeaderSpanID, trace.HeaderParentSpanID},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if opts.Breakers != nil {
			body["breakers"] = opts.Breakers.Snapshot()
		}
		writeJSON(w, http.StatusOK, body)
	})
	if opts.Metrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	verify := fileVerificationHandler(engine)
	r.Post(verificationPath, verify)
	r.Post(verificationPath+"/", verify)
	return r
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int, sc config.ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(sc.ReadTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(sc.WriteTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
