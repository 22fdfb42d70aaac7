package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"oracle/internal/api"
	"oracle/internal/config"
	"oracle/internal/consensus"
	"oracle/internal/dedupe"
	"oracle/internal/election"
	"oracle/internal/ledger"
	"oracle/internal/ledger/retry"
	"oracle/internal/market"
	"oracle/internal/orchestrator"
	"oracle/internal/peer"
	"oracle/internal/price"
	"oracle/internal/rug"
	"oracle/internal/scheduler"
	"oracle/internal/signing"
	"oracle/internal/storage"
	"oracle/internal/validator"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "oracle-node",
		Short:         "Runs one node of the call resolution oracle",
		SilenceUsage:  true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
		RunE: runNode,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Starts the node (default)",
			RunE:  runNode,
		},
		&cobra.Command{
			Use:   "roles <call-ledger-id>",
			Short: "Prints the leader and backup for a call",
			Args:  cobra.ExactArgs(1),
			RunE:  printRoles,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Creates the record store tables in DATABASE_URL",
			RunE:  migrate,
		},
	)
	return root
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// store is the record store the node reads its work from
type store interface {
	storage.Repository
	storage.ResolutionRecorder
}

func runNode(cmd *cobra.Command, _ []string) error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 2. Configure logger
	setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3. Identity
	key, err := signing.ParsePrivateKey(cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("invalid ORACLE_SECRET_KEY: %w", err)
	}
	signer := signing.NewSigner(key)
	verifier, err := signing.NewVerifier(cfg.OracleSigners)
	if err != nil {
		return err
	}

	slog.Info("Configuration loaded",
		"node_id", cfg.NodeID,
		"public_key", signer.PublicKey(),
		"peers", cfg.PeerURLs,
		"solana_rpc", cfg.SolanaRPCURL,
		"program_id", cfg.ProgramID,
		"log_level", cfg.LogLevel,
	)
	if len(cfg.OracleSigners) == 0 {
		slog.Warn("ORACLE_SIGNERS not set, peer signatures are only checked for validity")
	}

	strategy := retry.NewStrategy(cfg.Retry)

	// 4. Record store: direct database access or the backend REST API
	var records store
	var holders rug.HolderHistory = rug.NoHolderHistory{}
	if cfg.DatabaseURL != "" {
		repo, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		records = repo
		holders = repo
		slog.Info("Database connected successfully")
	} else {
		backend, err := storage.NewBackendClient(cfg.BackendURL, cfg.PeerTimeout)
		if err != nil {
			return err
		}
		records = backend
		slog.Info("Using backend record store", "url", cfg.BackendURL)
	}
	defer records.Close()

	// 5. Market data and validation
	clientCfg := func(endpoint string) market.ClientConfig {
		return market.ClientConfig{
			Endpoint:      endpoint,
			Timeout:       cfg.ProviderTimeout,
			RatePerSecond: cfg.ProviderRateLimit,
			Burst:         1,
		}
	}
	dex, err := market.NewDexScreener(clientCfg(cfg.DexScreenerURL))
	if err != nil {
		return err
	}
	jup, err := market.NewJupiter(clientCfg(cfg.JupiterURL))
	if err != nil {
		return err
	}
	prices := price.NewAggregator(cfg.ProviderTimeout, dex, jup)

	rugCfg := rug.DefaultConfig()
	rugCfg.LiquidityFloorUSD = cfg.LiquidityFloorUSD
	rugCfg.Timeout = cfg.ProviderTimeout
	calls := validator.New(prices, rug.NewEvaluator(dex, holders, rugCfg))

	// 6. Consensus with peers
	peers := make([]consensus.Peer, 0, len(cfg.PeerURLs))
	for _, u := range cfg.PeerURLs {
		peers = append(peers, peer.NewClient(u, u))
	}
	coordinator := consensus.NewCoordinator(calls, signer, verifier, peers,
		consensus.WithPeerTimeout(cfg.PeerTimeout),
	)

	// 7. Ledger submission and post-resolution hooks
	chain, err := ledger.NewSolanaLedger(ledger.SolanaConfig{
		RPCURL:    cfg.SolanaRPCURL,
		ProgramID: cfg.ProgramID,
	}, signer.PrivateKey(), strategy)
	if err != nil {
		return err
	}
	submitter := ledger.NewSubmitter(chain, records, strategy)
	orch := orchestrator.New(coordinator, submitter,
		orchestrator.NewRecorderHook("record-store", records),
	)

	// 8. Scheduling
	elector, err := election.New(cfg.NodeCount, cfg.LeaderGracePeriod)
	if err != nil {
		return err
	}
	attempts, err := dedupe.New(cfg.DedupeCapacity)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Config{
		NodeID:        cfg.NodeID,
		Interval:      cfg.TickInterval,
		MaxConcurrent: cfg.MaxConcurrentResolutions,
	}, records, elector, attempts, orch, strategy)
	if err != nil {
		return err
	}

	// 9. Peer RPC and operator endpoints
	rpcServer, err := peer.NewServer(coordinator)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg.ListenPort,
		api.NodeInfo{NodeID: cfg.NodeID, PublicKey: signer.PublicKey()},
		elector, rpcServer, records,
	)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Error stopping node server", "error", err)
		}
	}()

	slog.Info("Oracle node running",
		"node_id", cfg.NodeID,
		"port", cfg.ListenPort,
		"tick_interval", cfg.TickInterval,
	)

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler stopped: %w", err)
	}

	slog.Warn("Interrupt received, shutting down...")
	return nil
}

func printRoles(cmd *cobra.Command, args []string) error {
	nodeCount := election.DefaultNodeCount
	if cfg, err := config.Load(); err == nil {
		nodeCount = cfg.NodeCount
	}
	elector, err := election.New(nodeCount, election.DefaultGracePeriod)
	if err != nil {
		return err
	}

	callID := args[0]
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "call:   %s\n", callID)
	fmt.Fprintf(out, "leader: node %d\n", elector.Leader(callID))
	fmt.Fprintf(out, "backup: node %d\n", elector.Backup(callID))
	return nil
}

func migrate(cmd *cobra.Command, _ []string) error {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	setupLogger("info")

	repo, err := storage.NewPostgresRepository(cmd.Context(), url)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(cmd.Context()); err != nil {
		return err
	}
	slog.Info("Schema applied")
	return nil
}
