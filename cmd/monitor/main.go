// Package main provides the buy monitor service: it watches a single token
// mint through provider webhooks and a log subscription, classifies buys,
// and exposes them over HTTP and WebSocket push.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"token-buy-monitor/internal/broadcast"
	"token-buy-monitor/internal/dedup"
	"token-buy-monitor/internal/detection"
	"token-buy-monitor/internal/ingestion"
	"token-buy-monitor/internal/solana"
	"token-buy-monitor/internal/storage/memory"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	mint := flag.String("mint", os.Getenv("TRACKED_MINT"), "Tracked token mint address")
	apiKey := flag.String("api-key", os.Getenv("HELIUS_API_KEY"), "Provider API key")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	enhancedURL := flag.String("enhanced-url", os.Getenv("ENHANCED_TX_URL"), "Enhanced transactions REST endpoint")
	webhookURL := flag.String("webhook-url", os.Getenv("WEBHOOK_URL"), "Public URL for provider webhook registration (optional)")
	minSpend := flag.Float64("min-spend", envFloat("MIN_SPEND", 0.001), "Minimum SOL spend to count as a buy")
	excluded := flag.String("excluded-accounts", os.Getenv("EXCLUDED_ACCOUNTS"), "Comma-separated accounts to never report as buyers")
	excludePDAs := flag.Bool("exclude-pdas", envBool("EXCLUDE_PDAS", false), "Suppress buys attributed to program derived addresses")
	commitment := flag.String("commitment", envOr("COMMITMENT", "confirmed"), "Subscription commitment level")
	dedupWindow := flag.Int("dedup-window", envInt("DEDUP_WINDOW", 1000), "Number of recent signatures kept for deduplication")
	recentBuys := flag.Int("recent-buys", envInt("RECENT_BUYS", 100), "Number of recent buy events retained")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":3000"), "HTTP listen address")
	disableWS := flag.Bool("disable-subscription", envBool("DISABLE_SUBSCRIPTION", false), "Run webhook-only, without the log subscription")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *mint == "" {
		logger.Fatal("--mint is required")
	}
	if err := solana.ValidateAddress(*mint); err != nil {
		logger.Fatalf("Invalid mint address: %v", err)
	}

	// Derive provider endpoints from the API key when not set explicitly
	if *apiKey != "" {
		if *rpcEndpoint == "" {
			*rpcEndpoint = "https://mainnet.helius-rpc.com/?api-key=" + *apiKey
		}
		if *wsEndpoint == "" {
			*wsEndpoint = "wss://mainnet.helius-rpc.com/?api-key=" + *apiKey
		}
		if *enhancedURL == "" {
			*enhancedURL = "https://api.helius.xyz/v0/transactions?api-key=" + *apiKey
		}
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint or --api-key is required")
	}
	if !*disableWS && *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint or --api-key is required (or --disable-subscription)")
	}
	if !*disableWS && *enhancedURL == "" {
		logger.Println("No enhanced transactions endpoint; subscription detail fetches use raw getTransaction")
	}

	excludedList := splitList(*excluded)
	logger.Printf("Tracking mint %s (min spend %.9f SOL, %d excluded accounts)", *mint, *minSpend, len(excludedList))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Assemble the pipeline
	classifier := detection.NewClassifier(*mint, *minSpend,
		detection.WithExcludedAccounts(excludedList),
		detection.WithProgramDerivedFilter(*excludePDAs),
	)
	store := memory.NewBuyEventStore(*recentBuys)
	broadcaster := broadcast.NewBroadcaster(broadcast.DefaultBufferSize, log.New(os.Stdout, "[broadcast] ", log.LstdFlags))
	pipeline := ingestion.NewPipeline(ingestion.PipelineOptions{
		Classifier:  classifier,
		Window:      dedup.NewWindow(*dedupWindow),
		Store:       store,
		Broadcaster: broadcaster,
		Logger:      log.New(os.Stdout, "[ingestion] ", log.LstdFlags),
	})

	rpc := solana.NewHTTPClient(*rpcEndpoint, solana.WithEnhancedURL(*enhancedURL))

	server := &Server{
		mint:        *mint,
		minSpend:    *minSpend,
		pipeline:    pipeline,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		startedAt:   time.Now(),
	}

	// Register the provider webhook when a public URL is configured
	if *webhookURL != "" {
		if *apiKey == "" {
			logger.Fatal("--api-key is required to register a webhook")
		}
		registerWebhook(ctx, logger, *apiKey, *webhookURL, *mint)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start the log subscription source
	if !*disableWS {
		go func() {
			if err := runSubscription(ctx, logger, *wsEndpoint, *commitment, *mint, rpc, pipeline, server); err != nil && err != context.Canceled {
				logger.Printf("Subscription source error: %v", err)
			}
		}()
	}

	// Run the HTTP server
	err := server.run(ctx, *listenAddr)
	done <- err
	cancel()
	broadcaster.Close()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// registerWebhook clears stale provider webhook registrations and creates a
// fresh one pointing at this deployment. The provider caps registrations
// per account, so leftovers from previous runs must go first.
func registerWebhook(ctx context.Context, logger *log.Logger, apiKey, webhookURL, mint string) {
	admin := solana.NewWebhookAdmin(apiKey)

	setupCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	deleted, err := admin.DeleteAll(setupCtx)
	if err != nil {
		logger.Printf("Webhook cleanup failed: %v", err)
	} else if deleted > 0 {
		logger.Printf("Deleted %d stale webhook registrations", deleted)
	}

	id, err := admin.Register(setupCtx, webhookURL, mint)
	if err != nil {
		// The subscription path still covers the mint; keep running.
		logger.Printf("Webhook registration failed: %v", err)
		return
	}
	logger.Printf("Webhook registered: id=%s url=%s", id, webhookURL)
}

// runSubscription connects the WebSocket client and runs the subscription
// source until the context is cancelled.
func runSubscription(ctx context.Context, logger *log.Logger, wsEndpoint, commitment, mint string, rpc solana.RPCClient, pipeline *ingestion.Pipeline, server *Server) error {
	ws, err := solana.NewWSClient(ctx, wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	source := ingestion.NewWSSource(ingestion.WSSourceOptions{
		WS:         ws,
		RPC:        rpc,
		Pipeline:   pipeline,
		Mint:       mint,
		Commitment: commitment,
		Logger:     log.New(os.Stdout, "[ws-source] ", log.LstdFlags),
	})

	server.setSource(source)
	return source.Run(ctx)
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envFloat parses an env var as float64, falling back on absence or error.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envInt parses an env var as int, falling back on absence or error.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envBool parses an env var as bool, falling back on absence or error.
func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// splitList splits a comma-separated flag value into trimmed entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
