// Package api — REST-интерфейс сервиса: публичные ручки бронирования
// и отслеживания, админские операции над заказами и кабинет сотрудника.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"klimatik/internal/booking"
	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/domain"
	"klimatik/internal/export"
	"klimatik/internal/metrics"

	"github.com/rs/zerolog"
)

type HTTPServer struct {
	cfg      *config.Config
	db       *database.DB
	booking  *booking.Service
	drafts   domain.DraftRepository
	exporter *export.Exporter
	bus      domain.EventPublisher
	admin    *AdminAuth
	tokens   *TokenManager
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(
	cfg *config.Config,
	db *database.DB,
	bookingSvc *booking.Service,
	drafts domain.DraftRepository,
	exporter *export.Exporter,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		db:       db,
		booking:  bookingSvc,
		drafts:   drafts,
		exporter: exporter,
		bus:      bus,
		admin:    NewAdminAuth(cfg.API),
		tokens:   NewTokenManager(cfg.JWT),
		logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", srv.handleHealth)
	mux.HandleFunc("/api/v1/slots", srv.handleSlots)
	mux.HandleFunc("/api/v1/calendar", srv.handleCalendar)
	mux.HandleFunc("/api/v1/catalog", srv.handleCatalog)
	mux.HandleFunc("/api/v1/content/", srv.handleContent)
	mux.HandleFunc("/api/v1/reviews", srv.handleReviews)
	mux.HandleFunc("/api/v1/reviews/", srv.handleReviewActions)
	mux.HandleFunc("/api/v1/drafts", srv.handleCreateDraft)
	mux.HandleFunc("/api/v1/drafts/", srv.handleDraft)
	mux.HandleFunc("/api/v1/orders", srv.handleOrders)
	mux.HandleFunc("/api/v1/orders/", srv.handleOrderSubpath)
	mux.HandleFunc("/api/v1/auth/login", srv.handleLogin)
	mux.HandleFunc("/api/v1/auth/refresh", srv.handleRefresh)
	mux.HandleFunc("/api/v1/technicians/me/orders", srv.requireTechnician(srv.handleMyOrders))

	handler := srv.loggingMiddleware(srv.rateLimitMiddleware(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler отдает собранный корневой обработчик, удобно для httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.admin.Allow(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path, strconv.Itoa(recorder.status))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
