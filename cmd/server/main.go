package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrdine/core/internal/app"
	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/database"
	"github.com/qrdine/core/internal/modules/auth/staff"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/pkg/nativelog"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "qrdine",
		Short:         "QR table ordering core service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to YAML config file")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), staffCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := database.EnsureSchema(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage dashboard accounts",
	}

	var dto staff.CreateStaffDTO
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err := database.Connect(cfg, true)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			// The CLI never signs tokens; any non-empty secret satisfies the manager.
			tokens, err := jwt.New("cli", 0)
			if err != nil {
				return err
			}
			member, err := staff.NewService(gormstore.New(db), tokens, nil).Create(cmd.Context(), &dto)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) for organization %s\n", member.Email, member.Role, member.OrganizationID)
			return nil
		},
	}
	create.Flags().StringVar(&dto.OrganizationID, "org", "", "Organization id")
	create.Flags().StringVar(&dto.Email, "email", "", "Login email")
	create.Flags().StringVar(&dto.Name, "name", "", "Display name")
	create.Flags().StringVar(&dto.Password, "password", "", "Initial password")
	create.Flags().StringVar(&dto.Role, "role", "staff", "owner, manager or staff")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := nativelog.NewZapLogger(cfg.LogDir(), cfg.IsDev())
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("native log pipeline unavailable, fallback to zap production logger", zap.Error(err))
	}
	defer logger.Sync()

	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize app", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              application.Addr(),
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	application.Shutdown(ctx)
	logger.Info("server exited")
	return serveErr
}
