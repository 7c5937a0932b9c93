package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"civic-governance-backend/database"
	"civic-governance-backend/handlers"
	"civic-governance-backend/routes"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}

			// 等待中断信号以优雅地关闭服务器
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if err := app.start(ctx); err != nil {
				_ = app.Close()
				return err
			}

			srv := routes.StartServer(app.router, cfg.Server.Addr, logger)
			<-ctx.Done()
			logger.Info().Msg("关闭服务器...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("服务器强制关闭")
			}
			if err := app.Close(); err != nil {
				return err
			}
			logger.Info().Msg("服务器优雅关闭")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "监听地址，覆盖 server.addr")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移后退出",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			db, err := database.InitDB(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB(db) }()
			return database.Migrate(db, logger)
		},
	}
}

// newTokenCmd 签发开发用 JWT，addr 声明即调用者地址
func newTokenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "为地址签发访问令牌",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := handlers.IssueToken([]byte(cfg.Auth.JWTSecret), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "令牌有效期")
	return cmd
}
