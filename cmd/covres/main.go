// 程序入口：covres 命令行，负责读取配置、初始化依赖并调度解析或导入
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"covres/internal/config"
	"covres/internal/logger"
	"covres/internal/store"
	"covres/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "covres",
	Short:         "Resolve spatio-temporal covariates into model tensors",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		l := logger.SetupWith(cfg.Log.Level, cfg.Log.Format)
		l.Debug("config_loaded", "path", configPath, "workers", cfg.Workers, "db_driver", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "covres.yaml", "path to the YAML config file")
	rootCmd.AddCommand(resolveCmd, importCmd, publishCmd, schemaCmd)
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	if err := rootCmd.Execute(); err != nil {
		logger.L().Error("command_failed", "err", err)
		fmt.Fprintln(os.Stderr, "covres:", err)
		os.Exit(1)
	}
}

// openStore 按配置打开数据库并确保表结构存在
func openStore(ctx context.Context) (*store.Store, error) {
	d := utils.ParseDialect(cfg.Database.Driver)
	st, err := store.Open(d, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.DB().PingContext(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	logger.L().Info("db_open_ok", "driver", string(d))
	if err := migrateSchema(st); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// openFeed 从环境变量打开 Redis；不可达时返回错误
func openFeed(ctx context.Context) (*store.RedisFeed, func(), error) {
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		return nil, nil, fmt.Errorf("redis disabled")
	}
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.L().Info("redis_ping_ok")
	return store.NewRedisFeed(rc, cfg.Redis.GridKey, cfg.Redis.SamplesKey), func() { rc.Close() }, nil
}
