package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidemetrics/adrecon/internal/attribution"
	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/config"
	"github.com/tidemetrics/adrecon/internal/export"
	"github.com/tidemetrics/adrecon/internal/ingest"
	"github.com/tidemetrics/adrecon/internal/metrics"
	"github.com/tidemetrics/adrecon/internal/middleware"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/rates"
	"github.com/tidemetrics/adrecon/internal/recon"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Coordinator *recon.Coordinator
	Importer    *ingest.Importer
	Deliveries  *ingest.DeliveryEditor
	Classifier  *attribution.Classifier
	Stores      recon.Stores
	Bus         *bus.Bus
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Server wraps the HTTP handlers over the reconciliation engine.
type Server struct {
	coordinator *recon.Coordinator
	importer    *ingest.Importer
	deliveries  *ingest.DeliveryEditor
	classifier  *attribution.Classifier
	stores      recon.Stores
	bus         *bus.Bus
	logger      *zap.Logger
	config      *config.Config
	metrics     *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		coordinator: deps.Coordinator,
		importer:    deps.Importer,
		deliveries:  deps.Deliveries,
		classifier:  deps.Classifier,
		stores:      deps.Stores,
		bus:         deps.Bus,
		logger:      deps.Logger,
		config:      deps.Config,
		metrics:     deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Reconciliation snapshot
	mux.HandleFunc("/reconciliation", s.handleReconciliation)
	mux.HandleFunc("/reconciliation/products", s.handleProductRollups)
	mux.HandleFunc("/reconciliation/daily", s.handleDaily)
	mux.HandleFunc("/reconciliation/refresh", s.handleRefresh)
	mux.HandleFunc("/reconciliation/range", s.handleDateRange)

	// Spend
	mux.HandleFunc("/spend/import", s.handleSpendImport)
	mux.HandleFunc("/spend/unclassified", s.handleUnclassified)
	mux.HandleFunc("/spend/classify", s.handleClassify)

	// Finance feed
	mux.HandleFunc("/finance/import", s.handleFinanceImport)

	// Deliveries
	mux.HandleFunc("/deliveries", s.handleDeliveries)

	// Exchange rates
	mux.HandleFunc("/rates", s.handleRates)
	mux.HandleFunc("/rates/resolve", s.handleResolveRate)

	// Product catalog
	mux.HandleFunc("/products", s.handleProducts)

	// Export
	mux.HandleFunc("/export/csv", s.handleExportCSV)

	// Middleware chain: recovery -> logging -> auth -> rate limit
	rl := middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger)
	rl.SetMetrics(deps.Metrics)

	var handler http.Handler = mux
	handler = rl.Handler(handler)
	handler = middleware.NewAuthMiddleware(deps.Config.Auth, deps.Logger).Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)

	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  string(s.coordinator.State()),
	})
}

// ---- Reconciliation ----

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.errorResponse(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, snap)
}

func (s *Server) handleProductRollups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.errorResponse(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, snap.Rollups)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.errorResponse(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, snap.Daily)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.coordinator.Trigger(bus.EventType("refresh"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "scheduled"})
}

func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	from, err := parseDateParam(req.From)
	if err != nil {
		s.errorResponse(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := parseDateParam(req.To)
	if err != nil {
		s.errorResponse(w, "invalid to date", http.StatusBadRequest)
		return
	}

	s.coordinator.SetDateRange(from, to)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "scheduled"})
}

// ---- Spend ----

func (s *Server) handleSpendImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	userScope := r.URL.Query().Get("user_scope")
	if userScope == "" {
		userScope = s.config.Engine.UserScope
	}

	result, err := s.importer.ImportSpendCSV(r.Context(), userScope, r.Body)
	if err != nil {
		s.logger.Error("spend import failed", zap.Error(err))
		s.errorResponse(w, "import failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleUnclassified(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.errorResponse(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, snap.Unclassified)
}

// handleClassify previews how a campaign label would classify. The strict
// result drives the pipeline; the loose result backs the review view for
// labels that fell into the fallback bucket.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	label := r.URL.Query().Get("label")
	if label == "" {
		s.errorResponse(w, "label query parameter required", http.StatusBadRequest)
		return
	}

	key := s.classifier.Classify(label)
	looseKey, looseOK := s.classifier.ClassifyLoose(label)
	s.jsonResponse(w, map[string]interface{}{
		"label":    label,
		"key":      key,
		"fallback": key.IsFallback(),
		"loose": map[string]interface{}{
			"key": looseKey,
			"ok":  looseOK,
		},
	})
}

// ---- Finance ----

func (s *Server) handleFinanceImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	result, err := s.importer.ImportFinanceCSV(r.Context(), r.Body)
	if err != nil {
		s.logger.Error("finance import failed", zap.Error(err))
		s.errorResponse(w, "import failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.jsonResponse(w, result)
}

// ---- Deliveries ----

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from, err := parseDateParam(r.URL.Query().Get("from"))
		if err != nil {
			s.errorResponse(w, "invalid from date", http.StatusBadRequest)
			return
		}
		to, err := parseDateParam(r.URL.Query().Get("to"))
		if err != nil {
			s.errorResponse(w, "invalid to date", http.StatusBadRequest)
			return
		}

		userScope := r.URL.Query().Get("user_scope")
		if userScope == "" {
			userScope = s.config.Engine.UserScope
		}

		list, err := s.stores.Deliveries.ListByRange(r.Context(), userScope, from, to)
		if err != nil {
			s.logger.Error("failed to list deliveries", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var rec models.DeliveryRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if rec.UserScope == "" {
			rec.UserScope = s.config.Engine.UserScope
		}
		if err := s.deliveries.Upsert(r.Context(), rec); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, rec)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Exchange Rates ----

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.stores.Rates.ListAll(r.Context())
		if err != nil {
			s.logger.Error("failed to list rates", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var rate models.ExchangeRate
		if err := json.NewDecoder(r.Body).Decode(&rate); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := rate.Validate(); err != nil {
			s.errorResponse(w, "invalid rate: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.stores.Rates.Upsert(r.Context(), rate); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if s.bus != nil {
			s.bus.Publish(bus.Event{Type: bus.EventRateChange})
		}
		s.jsonResponse(w, rate)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleResolveRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil || date.IsZero() {
		s.errorResponse(w, "date query parameter required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	recorded, err := s.stores.Rates.ListAll(r.Context())
	if err != nil {
		s.errorResponse(w, "failed to load rates", http.StatusInternalServerError)
		return
	}
	finance, err := s.stores.Finance.ListAll(r.Context())
	if err != nil {
		s.errorResponse(w, "failed to load finance records", http.StatusInternalServerError)
		return
	}

	resolver := rates.NewResolverWithDefault(recorded, finance, s.config.Engine.DefaultRate)
	s.jsonResponse(w, map[string]interface{}{
		"date": date.Format("2006-01-02"),
		"rate": resolver.Resolve(date),
	})
}

// ---- Products ----

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.stores.Products.ListAll(r.Context())
		if err != nil {
			s.logger.Error("failed to list products", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if p.MarginCurrency == "" {
			p.MarginCurrency = models.MarginLocal
		}
		if err := p.Validate(); err != nil {
			s.errorResponse(w, "invalid product: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.stores.Products.Upsert(r.Context(), p); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if s.bus != nil {
			s.bus.Publish(bus.Event{Type: bus.EventProductUpdate})
		}
		s.jsonResponse(w, p)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Export ----

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.coordinator.Snapshot()
	if snap == nil {
		s.errorResponse(w, "no snapshot published yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reconciliation.csv"`)
	if err := export.WriteCSV(w, snap.Records); err != nil {
		s.logger.Error("csv export failed", zap.Error(err))
	}
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parseDateParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
