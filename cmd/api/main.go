package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/electrostore/internal/config"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/invoice"
	"github.com/safar/electrostore/internal/logging"
	"github.com/safar/electrostore/internal/notify"
	"github.com/safar/electrostore/internal/store"
	"github.com/shopspring/decimal"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of successfully placed orders",
	})

	invoicesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_rendered_total",
		Help: "Total number of invoices rendered for download",
	})
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Base().Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("electrostore-api", cfg.Log.File)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("connected to database")

	dispatcher := notify.NewDispatcher(db, notify.NewMailer(cfg.SMTP))
	dispatcher.Start()

	mux := http.NewServeMux()

	mux.HandleFunc("/users", handleUsers(db))
	mux.HandleFunc("/users/", handleUserByID(db))
	mux.HandleFunc("/products", handleProducts(db))
	mux.HandleFunc("/products/", handleProductByID(db))
	mux.HandleFunc("/orders", handleOrders(db, dispatcher))
	mux.HandleFunc("/orders/", handleOrderByID(db))
	mux.HandleFunc("/settings", handleSettings(db))
	mux.HandleFunc("/settings/", handleSettingByKey(db))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      withMetrics(withRequestLogger(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	dispatcher.Stop()
	logger.Info("shutdown complete")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLogger stashes a request-scoped logger in the context so
// deeper handler code logs with the method and path attached.
func withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := logging.New("http").With("method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logging.WithCtx(r.Context(), reqLog)))
	})
}

func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := routePattern(r.URL.Path)
		httpRequests.WithLabelValues(r.Method, path, http.StatusText(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// routePattern collapses ids out of paths so metrics stay low-cardinality.
func routePattern(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// errorStatus maps the store error taxonomy onto HTTP classes: validation
// 400, missing resources 404, stock and transition conflicts 409,
// everything else an opaque 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrEmptyOrder),
		errors.Is(err, database.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrSettingNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrInvalidStatusTransition),
		errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromCtx(r.Context()).Error("request failed", "error", err)
		message = "internal error"
	}
	respondError(w, status, message)
}

func handleUsers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			user, err := store.CreateUser(ctx, db, req.Email, req.Name)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			respondJSON(w, http.StatusCreated, user)

		case http.MethodGet:
			page, pageSize := pageParams(r)

			result, err := store.ListUsers(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleUserByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/users/"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		user, err := store.GetUser(ctx, db, id)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, user)
	}
}

type productPayload struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	Stock        int             `json:"stock"`
	Specs        json.RawMessage `json:"specs"`
}

func (p productPayload) toRequest() store.CreateProductRequest {
	return store.CreateProductRequest{
		SKU:          p.SKU,
		Name:         p.Name,
		Description:  p.Description,
		Category:     p.Category,
		Price:        p.Price,
		ShippingCost: p.ShippingCost,
		Stock:        p.Stock,
		Specs:        p.Specs,
	}
}

func handleProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req productPayload
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			product, err := store.CreateProduct(ctx, db, req.toRequest())
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := pageParams(r)

			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rest := strings.TrimPrefix(r.URL.Path, "/products/")

		if idStr, ok := strings.CutSuffix(rest, "/stock"); ok {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid product ID")
				return
			}
			handleStockAdjust(ctx, w, r, db, id)
			return
		}

		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodPut:
			var req productPayload
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			product, err := store.UpdateProduct(ctx, db, id, req.toRequest())
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleStockAdjust(ctx context.Context, w http.ResponseWriter, r *http.Request, db *sql.DB, id int64) {
	if r.Method != http.MethodPatch {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := store.AdjustStock(ctx, db, id, req.Delta)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

func handleOrders(db *sql.DB, dispatcher *notify.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				UserID int64 `json:"user_id"`
				Items  []struct {
					ProductID int64           `json:"product_id"`
					Quantity  int             `json:"quantity"`
					Price     decimal.Decimal `json:"price"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []store.OrderItemRequest
			for _, item := range req.Items {
				items = append(items, store.OrderItemRequest{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					Price:     item.Price,
				})
			}

			order, err := store.PlaceOrder(ctx, db, store.PlaceOrderRequest{
				UserID: req.UserID,
				Items:  items,
			})
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			ordersPlaced.Inc()
			dispatcher.Enqueue(order.ID)

			respondJSON(w, http.StatusCreated, order)

		case http.MethodGet:
			userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid user_id")
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit < 1 || limit > 100 {
				limit = 20
			}

			result, err := store.ListOrdersCursor(ctx, db, userID, r.URL.Query().Get("cursor"), limit)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		rest := strings.TrimPrefix(r.URL.Path, "/orders/")

		if idStr, ok := strings.CutSuffix(rest, "/invoice"); ok {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid order ID")
				return
			}
			handleInvoiceDownload(w, r, db, id)
			return
		}

		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case http.MethodPatch:
			var req struct {
				Status      string `json:"status"`
				TrackingRef string `json:"tracking_ref"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			order, err := store.UpdateOrderStatus(ctx, db, id, req.Status, req.TrackingRef)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleInvoiceDownload(w http.ResponseWriter, r *http.Request, db *sql.DB, orderID int64) {
	pdf, err := invoice.Generate(r.Context(), db, orderID)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	invoicesRendered.Inc()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=invoice-"+strconv.FormatInt(orderID, 10)+".pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		logging.FromCtx(r.Context()).Error("write invoice response", "error", err)
	}
}

func handleSettings(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		settings, err := store.ListSettings(r.Context(), db)
		if err != nil {
			respondStoreError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, settings)
	}
}

func handleSettingByKey(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := strings.TrimPrefix(r.URL.Path, "/settings/")
		if key == "" {
			respondError(w, http.StatusBadRequest, "Missing setting key")
			return
		}

		switch r.Method {
		case http.MethodGet:
			setting, err := store.GetSetting(ctx, db, key)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, setting)

		case http.MethodPut:
			var req struct {
				Value       string `json:"value"`
				Description string `json:"description"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			setting, err := store.UpsertSetting(ctx, db, key, req.Value, req.Description)
			if err != nil {
				respondStoreError(w, r, err)
				return
			}
			respondJSON(w, http.StatusOK, setting)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Base().Error("encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
