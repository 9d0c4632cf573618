package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/msourial/platefull/internal/catalog"
	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/logger"
	"github.com/msourial/platefull/pkg/migrate"
)

//go:embed menu.yaml
var sampleMenu []byte

func main() {
	logg := logger.New(logger.Options{ServiceName: "seed"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	file := flag.String("file", "", "menu YAML to load (defaults to the bundled sample menu)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	var src io.Reader = bytes.NewReader(sampleMenu)
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			logg.Error(ctx, "failed to open menu file", err)
			os.Exit(1)
		}
		defer f.Close()
		src = f
	}

	menu, err := catalog.LoadMenu(src)
	if err != nil {
		logg.Error(ctx, "invalid menu file", err)
		os.Exit(1)
	}

	seeder, err := catalog.NewSeeder(catalog.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create seeder", err)
		os.Exit(1)
	}
	res, err := seeder.Seed(ctx, menu)
	if err != nil {
		logg.Error(ctx, "seed failed", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"categories": res.Categories,
		"items":      res.Items,
	}), "catalog seeded")
}
