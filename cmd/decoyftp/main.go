package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"decoyftp/internal/app"
	"decoyftp/internal/config"
	"decoyftp/internal/database"
	"decoyftp/internal/encryption"
	"decoyftp/internal/enrich"
	"decoyftp/internal/honeypot"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig locates and reads the config file using the application
// defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// openStore opens the telemetry store for read-only commands (report,
// export). The caller must close it.
func openStore() (*database.SQLiteStore, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	store, err := database.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("telemetry schema out of date (run 'decoyftp db migrate'): %w", err)
	}
	return store, nil
}

var rootCmd = &cobra.Command{
	Use:   "decoyftp",
	Short: "Deceptive FTP storage backend and attack telemetry recorder",
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the honeypot backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing: %w", err)
		}

		a.Logger().Info("backend ready",
			"listen", fmt.Sprintf("%s:%d", cfg.FTP.ListenAddr, cfg.FTP.Port),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			a.Logger().Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
			a.Logger().Info("shutting down", "reason", "context canceled")
		}

		if err := a.Close(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen:      %s:%d\n", cfg.FTP.ListenAddr, cfg.FTP.Port)
		fmt.Printf("VFS Seed:    %d\n", cfg.VirtualFS.Seed)
		fmt.Printf("Credentials: %s\n", cfg.Credentials.Mode)
		fmt.Printf("Storage:     %s (%s)\n", cfg.Storage.Type, cfg.Storage.Path)
		fmt.Printf("Capture:     %v (%s)\n", cfg.Capture.Enabled, cfg.Capture.Type)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the telemetry database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := database.NewStoreFromConfig(cfg.Storage)
		if err != nil {
			return fmt.Errorf("opening telemetry store: %w", err)
		}
		defer store.Close()

		if err := store.MigrateUp(); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Printf("Schema up to date at %s\n", store.Path())
		return nil
	},
}

// report command
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Look up captured artifact hashes against VirusTotal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if !cfg.Enrichment.Enabled {
			return fmt.Errorf("enrichment is disabled; set enrichment.enabled and api_key in the config")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		scanner := enrich.NewScanner(cfg.Enrichment, honeypot.NewNopLogger())
		stats, err := scanner.Run(cmd.Context(), store, limit)
		if err != nil {
			return err
		}

		fmt.Printf("Scanned %d artifacts: %d known, %d unknown.\n", stats.Scanned, stats.Found, stats.NotFound)
		if stats.RateLimited {
			fmt.Println("Stopped early: scanner rate limit reached.")
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recorded attack telemetry",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		heading := color.New(color.FgCyan, color.Bold)

		heading.Println("Recent sessions")
		sessions, err := store.RecentSessions(limit)
		if err != nil {
			return fmt.Errorf("loading sessions: %w", err)
		}
		if err := renderSessions(sessions); err != nil {
			return err
		}

		heading.Println("\nTop credentials")
		creds, err := store.TopCredentials(limit)
		if err != nil {
			return fmt.Errorf("loading credentials: %w", err)
		}
		if err := renderCredentials(creds); err != nil {
			return err
		}

		heading.Println("\nTop artifacts")
		artifacts, err := store.TopArtifacts(limit)
		if err != nil {
			return fmt.Errorf("loading artifacts: %w", err)
		}
		return renderArtifacts(artifacts)
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export telemetry as an encrypted bundle",
}

var exportInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the export key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		enc := encryption.NewAgeEncryptor(cfg.Export)
		if enc.IsConfigured() {
			return fmt.Errorf("export keys already exist at %s", cfg.Export.PublicKeyPath)
		}

		passphrase, err := promptPassphrase("Passphrase for export private key: ")
		if err != nil {
			return err
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating export keys: %w", err)
		}

		fmt.Printf("Export keys written to %s\n", cfg.Export.PublicKeyPath)
		return nil
	},
}

var exportWriteCmd = &cobra.Command{
	Use:   "write OUTPUT",
	Short: "Write an encrypted telemetry bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceStr, _ := cmd.Flags().GetString("since")

		since := time.Time{}
		if sinceStr != "" {
			var err error
			since, err = time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("parsing --since (want RFC3339): %w", err)
			}
		}

		cfg, err := readConfig()
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		enc := encryption.NewAgeEncryptor(cfg.Export)
		stats, err := app.WriteBundle(store, enc, since, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Bundle written to %s: %d sessions, %d credentials, %d commands, %d artifacts\n",
			args[0], stats.Sessions, stats.Credentials, stats.Commands, stats.Artifacts)
		return nil
	},
}

var exportDecryptCmd = &cobra.Command{
	Use:   "decrypt BUNDLE",
	Short: "Decrypt a telemetry bundle to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := promptPassphrase("Passphrase for export private key: ")
		if err != nil {
			return err
		}

		enc := encryption.NewAgeEncryptor(cfg.Export)
		return app.DecryptBundle(enc, passphrase, args[0], os.Stdout)
	},
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}
	return string(b), nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	dbCmd.AddCommand(dbMigrateCmd)

	exportCmd.AddCommand(exportInitCmd)
	exportCmd.AddCommand(exportWriteCmd)
	exportCmd.AddCommand(exportDecryptCmd)
	exportWriteCmd.Flags().String("since", "", "Only include telemetry at or after this RFC3339 time")

	reportCmd.Flags().IntP("limit", "n", 20, "Maximum rows per section")
	enrichCmd.Flags().IntP("limit", "n", 100, "Maximum artifacts to look up in one run")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(exportCmd)
}
