package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/htol/locallib/api"
	"github.com/htol/locallib/config"
	"github.com/htol/locallib/logger"
	"github.com/htol/locallib/repo"
	"github.com/htol/locallib/service"
)

// Exit codes
const (
	exitSuccess   = 0
	exitRuntime   = 1
	exitUserError = 2
)

func CLI(args []string) int {
	return cli(args, os.Stdout, os.Stderr)
}

func cli(args []string, stdout, stderr io.Writer) int {
	var app appEnv
	root := app.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		if app.config == nil {
			return exitUserError
		}
		logger.Error("Runtime error", "error", err)
		return exitRuntime
	}
	return exitSuccess
}

type appEnv struct {
	config     *config.Config
	configFile string
	port       int
	dbPath     string
	storage    *repo.Repo
	service    *service.Service
}

func (app *appEnv) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "locallib",
		Short:         "Local library catalog server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&app.configFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&app.dbPath, "db", "", "sqlite database path (overrides DB_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}
			return app.serve()
		},
	}
	serve.Flags().IntVarP(&app.port, "port", "p", 0, "port number (overrides PORT)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the catalog schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}
			defer app.close()
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog initialized")
			return nil
		},
	}

	root.AddCommand(serve, initCmd)
	return root
}

// loadConfig layers CLI flags over the config file and environment
func (app *appEnv) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(app.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = app.port
	}
	if app.dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = app.dbPath
		cfg.Database.DSN = ""
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.InitWithFormat(cfg.LogLevel, cfg.LogFormat)
	app.config = cfg
	return nil
}

func (app *appEnv) open(ctx context.Context) error {
	storage, err := repo.Open(ctx, app.config.Database)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	app.storage = storage
	app.service = service.New(storage)
	return nil
}

func (app *appEnv) close() {
	if app.storage == nil {
		return
	}
	if err := app.storage.Close(); err != nil {
		logger.Error("Error closing storage", "error", err)
	}
}

func (app *appEnv) serve() error {
	defer app.close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: api.NewHandler(app.service),

		ReadTimeout:  time.Duration(app.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(app.config.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "port", app.config.Server.Port, "url", fmt.Sprintf("http://localhost:%d/catalog", app.config.Server.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownSignal)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdownSignal:
		logger.Info("Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Shutting down server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	}
}
