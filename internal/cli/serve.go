package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietroom/warden/internal/audit"
	"github.com/quietroom/warden/internal/classify"
	"github.com/quietroom/warden/internal/denylist"
	"github.com/quietroom/warden/internal/engine"
	"github.com/quietroom/warden/internal/policy"
	"github.com/quietroom/warden/internal/ratelimit"
	"github.com/quietroom/warden/internal/server"
	"github.com/quietroom/warden/internal/sweep"
)

var (
	serveAddr          string
	serveConfig        string
	serveDenylist      string
	serveStore         string
	serveAuditLog      string
	serveAppealsDir    string
	serveClassifierURL string
	serveClassifierKey string
	serveNoSweep       bool
	serveRateLimit     int
	serveRateWindow    time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8470", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to moderation config YAML")
	serveCmd.Flags().StringVar(&serveDenylist, "denylist", "", "Path to denylist YAML")
	serveCmd.Flags().StringVar(&serveStore, "store", "memory", "Profile store (memory, sqlite:<path>, redis://<addr>)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to decision log JSONL file")
	serveCmd.Flags().StringVar(&serveAppealsDir, "appeals-dir", "", "Directory for the appeals ledger")
	serveCmd.Flags().StringVar(&serveClassifierURL, "classifier-url", "", "Remote classifier endpoint (empty disables)")
	serveCmd.Flags().StringVar(&serveClassifierKey, "classifier-key", "", "Bearer token for the classifier")
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "Disable the background maintenance sweeper")
	serveCmd.Flags().IntVar(&serveRateLimit, "rate-limit", 0, "Max requests per client IP per window (0 disables)")
	serveCmd.Flags().DurationVar(&serveRateWindow, "rate-window", time.Minute, "Rate limit window")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the moderation HTTP server",
	Long: "Runs warden as a moderation service over HTTP.\n" +
		"Chat frontends POST messages to /v1/evaluate and fan out only when allowed.\n" +
		"Supports hot-reload of config and denylist files.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := policy.LoadConfig(serveConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dl, err := denylist.Load(serveDenylist)
	if err != nil {
		return fmt.Errorf("failed to load denylist: %w", err)
	}

	store, err := openStore(serveStore)
	if err != nil {
		return err
	}

	var cls classify.Classifier
	if serveClassifierURL != "" {
		cls = classify.NewHTTP(classify.Config{
			URL:     serveClassifierURL,
			APIKey:  serveClassifierKey,
			Timeout: 3 * time.Second,
		})
	}

	var auditLog *audit.Log
	if serveAuditLog != "" {
		auditLog, err = audit.Open(serveAuditLog)
		if err != nil {
			return fmt.Errorf("failed to open decision log: %w", err)
		}
	}

	eng, err := engine.New(engine.Config{
		Policy:     cfg,
		Denylist:   dl,
		Classifier: cls,
		Store:      store,
		AppealDir:  serveAppealsDir,
		AuditLog:   auditLog,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()
	if auditLog != nil {
		defer auditLog.Close()
	}

	srv := server.New(eng, cls, server.Config{
		Addr:         serveAddr,
		ConfigPath:   serveConfig,
		DenylistPath: serveDenylist,
		RateLimit: ratelimit.Config{
			MaxRequests: serveRateLimit,
			Window:      serveRateWindow,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload watcher for config and denylist files
	reloader, err := server.NewReloader(srv, []string{serveConfig, serveDenylist})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	if !serveNoSweep {
		sw := sweep.New(store, eng.SweepConfig())
		go sw.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down moderation server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "warden moderation server listening on %s\n", serveAddr)
	if serveConfig != "" {
		fmt.Fprintf(os.Stderr, "Config: %s (hot-reload enabled)\n", serveConfig)
	}
	if serveClassifierURL == "" {
		fmt.Fprintln(os.Stderr, "Classifier: disabled (local rules only)")
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve(ctx)
}
