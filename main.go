package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/centsible/backend/src/config"
	"github.com/username/centsible/backend/src/database"
	"github.com/username/centsible/backend/src/handlers"
	"github.com/username/centsible/backend/src/logger"
	"github.com/username/centsible/backend/src/security"
	"github.com/username/centsible/backend/src/services"
	"github.com/username/centsible/backend/src/utils"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Centsible backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid, must be at least 32 characters.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath, config.Cfg.DBBusyTimeout)
	database.RunMigrations(config.Cfg.DatabasePath, config.Cfg.MigrationsPath)

	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry, config.Cfg.RefreshTokenExpiry)
	reconcileService := services.NewReconcileService(database.DB)
	pairingService := services.NewPairingService(database.DB, reconcileService)
	recurringService := services.NewRecurringService(database.DB, reconcileService)
	ledgerService := services.NewLedgerService(database.DB, reconcileService)
	deletionService := services.NewDeletionService(database.DB, reconcileService)
	summaryService := services.NewSummaryService(database.DB, summaryCache)

	userHandler := handlers.NewUserHandler(authService)
	accountHandler := handlers.NewAccountHandler(ledgerService, deletionService, reconcileService, summaryService)
	categoryHandler := handlers.NewCategoryHandler(deletionService, summaryService)
	transactionHandler := handlers.NewTransactionHandler(ledgerService, reconcileService, summaryService)
	transferHandler := handlers.NewTransferHandler(pairingService, summaryService)
	recurringHandler := handlers.NewRecurringHandler(recurringService, pairingService, deletionService, summaryService)
	budgetHandler := handlers.NewBudgetHandler(reconcileService, deletionService, summaryService)
	invoiceHandler := handlers.NewInvoiceHandler(ledgerService, deletionService, summaryService)
	summaryHandler := handlers.NewSummaryHandler(summaryService, reconcileService)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler := services.NewSyncScheduler(database.DB, recurringService, config.Cfg.SyncInterval, config.Cfg.SyncOnStartup)
	go scheduler.Run(schedulerCtx)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Centsible Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.Post("/auth/refresh", userHandler.RefreshTokenHandler)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)

			r.Get("/user/profile", userHandler.GetProfileHandler)

			r.Get("/accounts", accountHandler.ListAccountsHandler)
			r.Post("/accounts", accountHandler.CreateAccountHandler)
			r.Put("/accounts/{accountID}", accountHandler.UpdateAccountHandler)
			r.Delete("/accounts/{accountID}", accountHandler.DeleteAccountHandler)
			r.Post("/accounts/{accountID}/recompute-balance", accountHandler.RecomputeBalanceHandler)

			r.Get("/categories", categoryHandler.ListCategoriesHandler)
			r.Post("/categories", categoryHandler.CreateCategoryHandler)
			r.Put("/categories/{categoryID}", categoryHandler.UpdateCategoryHandler)
			r.Delete("/categories/{categoryID}", categoryHandler.DeleteCategoryHandler)

			r.Get("/transactions", transactionHandler.ListTransactionsHandler)
			r.Post("/transactions", transactionHandler.CreateTransactionHandler)
			r.Get("/transactions/{transactionID}", transactionHandler.GetTransactionHandler)
			r.Put("/transactions/{transactionID}", transactionHandler.UpdateTransactionHandler)
			r.Delete("/transactions/{transactionID}", transactionHandler.DeleteTransactionHandler)

			r.Post("/transfers", transferHandler.CreateTransferHandler)
			r.Put("/transfers/{transactionID}", transferHandler.UpdateTransferHandler)
			r.Delete("/transfers/{transactionID}", transferHandler.DeleteTransferHandler)

			r.Get("/recurring", recurringHandler.ListTemplatesHandler)
			r.Post("/recurring", recurringHandler.CreateTemplateHandler)
			r.Post("/recurring/sync", recurringHandler.SyncHandler)
			r.Post("/recurring/transfers", recurringHandler.CreateRecurringTransferHandler)
			r.Delete("/recurring/transfers/{templateID}", recurringHandler.DeleteRecurringTransferHandler)
			r.Post("/recurring/{templateID}/pause", recurringHandler.PauseTemplateHandler)
			r.Post("/recurring/{templateID}/resume", recurringHandler.ResumeTemplateHandler)
			r.Delete("/recurring/{templateID}", recurringHandler.DeleteTemplateHandler)

			r.Get("/budgets", budgetHandler.ListBudgetsHandler)
			r.Post("/budgets", budgetHandler.CreateBudgetHandler)
			r.Put("/budgets/{budgetID}", budgetHandler.UpdateBudgetHandler)
			r.Put("/budgets/{budgetID}/categories", budgetHandler.SetBudgetCategoriesHandler)
			r.Post("/budgets/{budgetID}/recompute-consumption", budgetHandler.RecomputeConsumptionHandler)
			r.Delete("/budgets/{budgetID}", budgetHandler.DeleteBudgetHandler)

			r.Get("/invoices", invoiceHandler.ListInvoicesHandler)
			r.Post("/invoices", invoiceHandler.UploadInvoiceHandler)
			r.Get("/invoices/{invoiceID}/file", invoiceHandler.DownloadInvoiceHandler)
			r.Post("/invoices/{invoiceID}/commit", invoiceHandler.CommitInvoiceHandler)
			r.Delete("/invoices/{invoiceID}", invoiceHandler.DeleteInvoiceHandler)

			r.Get("/summary", summaryHandler.GetSummaryHandler)
			r.Post("/reconcile/sweep", summaryHandler.SweepHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			utils.SendJSONError(w, "Not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.L.Info("Shutdown signal received")
		stopScheduler()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
	logger.L.Info("Server stopped")
}
