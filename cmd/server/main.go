/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Saga wallet engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire ledger, invitation service, and purchase reconciler
  4. Configure HTTP router and start the expiry sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port   HTTP server port (default: 8080, env PORT)
  -db     SQLite database path (default: wallet.db, env DATABASE_PATH)
          Use ":memory:" for an in-memory database
  -sweep  Expiry sweep interval (default: 10m, env SWEEP_INTERVAL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the expiry sweeper
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/wallet.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/sweeper.go: Background invitation expiry
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/saga/wallet-engine/api"
	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/purchase"
	"github.com/saga/wallet-engine/store/sqlite"
	"github.com/saga/wallet-engine/wallet"
)

func main() {
	// .env is optional; flags and real env take precedence over it.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "wallet.db"), "SQLite database path")
	sweep := flag.Duration("sweep", envDuration("SWEEP_INTERVAL", 10*time.Minute), "invitation expiry sweep interval")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	notifier := &invite.LogNotifier{}
	ledger := wallet.NewLedger(store)
	invites := invite.NewService(store, notifier)
	purchases := purchase.NewReconciler(ledger, purchase.DefaultCatalog(), notifier)

	handler := api.NewHandler(ledger, invites, purchases)
	router := api.NewRouter(handler)

	sweeper := api.NewExpirySweeper(invites)
	sweeper.CheckInterval = *sweep
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
