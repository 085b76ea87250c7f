package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"alphapilot/internal/app"
	apcfg "alphapilot/internal/config"
	"alphapilot/internal/logger"
	"alphapilot/internal/position"
	"alphapilot/internal/store/gormstore"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:          "alphapilot",
		Short:        "Market-aware paper trading engine",
		Long:         "AlphaPilot classifies the market regime, adjusts incoming prediction signals,\nvalidates them against risk limits and manages the resulting paper positions\nthrough their full lifecycle.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cfgPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath(), "path to the YAML config file")

	rootCmd.AddCommand(newRunCmd(&cfgPath))
	rootCmd.AddCommand(newPositionsCmd(&cfgPath))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func defaultConfigPath() string {
	if p := os.Getenv("ALPHAPILOT_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the decision engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(*cfgPath)
		},
	}
}

func newPositionsCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Print recent positions from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPositions(cmd.Context(), *cfgPath, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of positions to print")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("alphapilot v1.0.0")
		},
	}
}

func runEngine(cfgPath string) error {
	cfg, err := apcfg.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ config loaded (env=%s, symbols=%v)", cfg.App.Env, cfg.Symbols)

	a, err := app.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

func printPositions(ctx context.Context, cfgPath string, limit int) error {
	cfg, err := apcfg.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := gormstore.NewStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	positions, err := st.RecentPositions(ctx, limit)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	account, ok, err := st.LoadAccount(ctx)
	if err != nil {
		return fmt.Errorf("read account: %w", err)
	}
	if !ok {
		fmt.Println("no account state recorded yet")
	}
	fmt.Println(position.RenderBook(positions, account, nil))
	return nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
