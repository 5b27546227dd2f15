package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xtrntr/p2pex/internal/api"
	"github.com/xtrntr/p2pex/internal/auth"
	"github.com/xtrntr/p2pex/internal/config"
	"github.com/xtrntr/p2pex/internal/db"
	"github.com/xtrntr/p2pex/internal/dispute"
	"github.com/xtrntr/p2pex/internal/event"
	"github.com/xtrntr/p2pex/internal/kyc"
	"github.com/xtrntr/p2pex/internal/ledger"
	"github.com/xtrntr/p2pex/internal/order"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// handleEventStream pushes core events (order transitions, ledger entries,
// dispute activity) to each connected client.
func handleEventStream(broadcaster *event.Broadcaster, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("failed to upgrade connection")
			return
		}
		defer conn.Close()

		events, cancel := broadcaster.Subscribe()
		defer cancel()

		var mu sync.Mutex
		done := make(chan struct{})

		// Drain reads to detect disconnects.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case e := <-events:
				mu.Lock()
				err := conn.WriteJSON(e)
				mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// Main entry point: wires the database, services and HTTP server.
func main() {
	cfg := config.Load()
	log := config.NewLogger("server", cfg.LogLevel)
	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	// Events fan out to the audit log and the websocket stream.
	broadcaster := event.NewBroadcaster()
	events := event.Multi{
		event.LogPublisher{Log: config.NewLogger("audit", cfg.LogLevel)},
		broadcaster,
	}

	// Trading fees accrue to the platform treasury account, keeping total
	// supply constant across settlements.
	treasury, err := database.GetOrCreateTreasuryUser(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ensure treasury account")
	}

	ledgerSvc := ledger.New(database, treasury.ID, events, config.NewLogger("ledger", cfg.LogLevel))
	kycSvc := kyc.NewService(database)
	orderSvc := order.NewService(database, ledgerSvc, kycSvc, events, config.NewLogger("order", cfg.LogLevel))
	disputeSvc := dispute.NewService(database, ledgerSvc, events, config.NewLogger("dispute", cfg.LogLevel))
	authSvc := auth.NewService(database, []byte(cfg.JWTSecret))

	handler := api.NewHandler(database, authSvc, orderSvc, ledgerSvc, disputeSvc, kycSvc, log)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/currencies", handler.ListCurrencies)
	r.Get("/ws", handleEventStream(broadcaster, log))

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.AuthMiddleware)

		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders", handler.GetUserOrders)
		r.Get("/orders/pending", handler.GetPendingOrders)
		r.Patch("/orders/{id}/match", handler.MatchOrder)
		r.Patch("/orders/{id}/confirm", handler.ConfirmOrder)
		r.Patch("/orders/{id}/complete", handler.CompleteOrder)
		r.Patch("/orders/{id}/cancel", handler.CancelOrder)

		r.Get("/wallets", handler.GetUserWallets)
		r.Post("/wallets/create", handler.CreateWallet)
		r.Get("/wallets/balance/{currencyId}", handler.GetWalletBalance)
		r.Get("/wallets/transactions", handler.GetTransactionHistory)
		r.Post("/wallets/deposit/create", handler.CreateDeposit)
		r.Patch("/wallets/deposits/{id}/confirm", handler.ConfirmDeposit)
		r.Post("/wallets/withdraw", handler.Withdraw)

		r.Post("/disputes", handler.CreateDispute)
		r.Get("/disputes", handler.GetUserDisputes)
		r.Get("/disputes/all", handler.GetAllDisputes)
		r.Patch("/disputes/{id}/resolve", handler.ResolveDispute)
		r.Patch("/disputes/{id}/close", handler.CloseDispute)

		r.Post("/kyc/submit", handler.SubmitKYC)
		r.Get("/kyc/status", handler.GetKYCStatus)
		r.Get("/kyc/pending", handler.GetPendingKYCs)
		r.Patch("/kyc/{id}/review", handler.ReviewKYC)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("server stopped")
}
