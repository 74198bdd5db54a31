// Package review parses review service flags and launches the service.
package review

import (
	"context"
	"flag"

	entrypoint "github.com/standardsja/pms-sub000/internal/platform/cmd"
	server "github.com/standardsja/pms-sub000/internal/services/review/app"
)

// Config holds review command configuration.
type Config struct {
	HTTPAddr  string `env:"PMS_REVIEW_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr  string `env:"PMS_REVIEW_GRPC_ADDR" envDefault:":8081"`
	DBPath    string `env:"PMS_REVIEW_DB_PATH" envDefault:"data/review.db"`
	JWTSecret string `env:"PMS_REVIEW_JWT_SECRET"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The review JSON API address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The review health endpoint address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The review SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the review API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceReview, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:  cfg.HTTPAddr,
			GRPCAddr:  cfg.GRPCAddr,
			DBPath:    cfg.DBPath,
			JWTSecret: cfg.JWTSecret,
		})
	})
}
