package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// requestLogger adapts the teacher's walletserver logging middleware to
// chi's handler signature: it stamps every request with a correlation ID,
// logs method/path/status/latency, and records it against requestsTotal.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.New().String()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			logger.Infof("[%s] %s %s %d %s", reqID, r.Method, r.RequestURI, rec.status, elapsed)
			requestsTotal.WithLabelValues(r.URL.Path, fmt.Sprintf("%dxx", rec.status/100)).Inc()
		})
	}
}

// Routes builds the wallet API's chi router (spec §6): every route is
// served off the User node's shared wallet handle through c.
func Routes(c *Controller, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New()
	}
	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/wallet_info", c.WalletInfo)
	r.Post("/make_payment", c.MakePayment)
	r.Post("/make_ip_payment", c.MakeIPPayment)
	r.Post("/request_donation", c.RequestDonation)
	r.Get("/wallet_keypairs", c.WalletKeypairs)
	r.Post("/import_keypairs", c.ImportKeypairs)
	r.Post("/update_running_total", c.UpdateRunningTotal)
	r.Get("/wallet_encapsulation_data", c.WalletEncapsulationData)
	r.Get("/payment_address", c.PaymentAddress)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

// Server wraps an http.Server bound to a User node's wallet API port.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// NewServer constructs a Server listening on addr (host:port, typically
// ":"+cfg.APIPort from nodecfg.UserConfig).
func NewServer(addr string, svc *Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New()
	}
	handler := Routes(NewController(svc), logger)
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		logger: logger,
	}
}

// ListenAndServe starts serving and blocks until the server stops or fails.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("httpapi: wallet API listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
