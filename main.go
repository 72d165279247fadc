package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/wombats/backend/src/config"
	"github.com/username/wombats/backend/src/database"
	"github.com/username/wombats/backend/src/handlers"
	"github.com/username/wombats/backend/src/logger"
	"github.com/username/wombats/backend/src/processors"
	"github.com/username/wombats/backend/src/security"
	"github.com/username/wombats/backend/src/services"
	"github.com/username/wombats/backend/src/storage"
	"golang.org/x/time/rate"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == config.Cfg.CORSAllowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Wombats backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	limiter = rate.NewLimiter(rate.Limit(config.Cfg.RequestsPerSecond), config.Cfg.RequestBurst)

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing snapshot cache...")
	snapshotCache := cache.New(config.Cfg.PortfolioCacheTTL, config.Cfg.CacheCleanupInterval)

	logger.L.Info("Initializing quote request queue...", "spacing", config.Cfg.QuoteRequestSpacing)
	quoteQueue := services.NewQuoteRequestQueue(
		config.Cfg.QuoteRequestSpacing,
		config.Cfg.QuoteQueueDepth,
		&http.Client{Timeout: config.Cfg.QuoteClientTimeout},
	)
	defer quoteQueue.Close()

	logger.L.Info("Initializing services and handlers...")
	store := storage.NewStore(database.DB)
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	quoteService := services.NewQuoteService(quoteQueue, config.Cfg.FinnhubBaseURL, config.Cfg.FinnhubAPIKey)
	holdingsProcessor := processors.NewHoldingsProcessor()
	portfolioService := services.NewPortfolioService(store, quoteService, holdingsProcessor, snapshotCache, config.Cfg.PortfolioCacheTTL)
	tradeService := services.NewTradeService(store, quoteService, holdingsProcessor, portfolioService)

	userHandler := handlers.NewUserHandler(authService, store)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
	tradeHandler := handlers.NewTradeHandler(tradeService, store)
	accountHandler := handlers.NewAccountHandler(store)
	searchHandler := handlers.NewSearchHandler(quoteService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/auth/register", userHandler.RegisterUserHandler)
	apiRouter.HandleFunc("POST /api/auth/login", userHandler.LoginUserHandler)

	applyAuth := func(handler http.HandlerFunc) http.Handler {
		return userHandler.AuthMiddleware(handler)
	}

	apiRouter.Handle("GET /api/portfolio", applyAuth(portfolioHandler.HandleGetPortfolio))
	apiRouter.Handle("GET /api/portfolio/performers", applyAuth(portfolioHandler.HandleGetTopPerformers))
	apiRouter.Handle("POST /api/trades/buy", applyAuth(tradeHandler.HandleBuy))
	apiRouter.Handle("POST /api/trades/sell", applyAuth(tradeHandler.HandleSell))
	apiRouter.Handle("GET /api/transactions", applyAuth(tradeHandler.HandleGetTransactions))
	apiRouter.Handle("GET /api/account", applyAuth(accountHandler.HandleGetAccount))
	apiRouter.Handle("GET /api/search", applyAuth(searchHandler.HandleSearch))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Wombats backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		// Portfolio valuation paces one provider call per holding, so
		// responses can legitimately take many seconds.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
