// Утилита для разовой синхронизации каталога и заведения сотрудников
// без перезапуска сервиса:
//
//	go run scripts/migrate_catalog.go -catalog configs/catalog.yaml -db ./data/klimatik.db
//	go run scripts/migrate_catalog.go -db ./data/klimatik.db -technician ivan:secret:"Иван Петров"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"klimatik/internal/api"
	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type catalogConfig struct {
	Items []models.CatalogItem `yaml:"items"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/klimatik.db", "path to sqlite db")
		technician  = flag.String("technician", "", "create technician, format login:password:name")
	)
	flag.Parse()

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *technician != "" {
		return createTechnician(ctx, db, *technician)
	}

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var cfg catalogConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(cfg.Items) == 0 {
		return fmt.Errorf("no items in yaml")
	}
	if err = config.ValidateCatalog(cfg.Items); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	if err = db.SyncCatalog(ctx, cfg.Items); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}

	fmt.Printf("done: synced %d catalog items\n", len(cfg.Items))
	return nil
}

func createTechnician(ctx context.Context, db *database.DB, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("technician format is login:password:name")
	}

	hash, err := api.HashPassword(parts[1])
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tech := &models.Technician{
		Login:        parts[0],
		PasswordHash: hash,
		Name:         parts[2],
		IsActive:     true,
	}
	if err = db.CreateTechnician(ctx, tech); err != nil {
		return fmt.Errorf("create technician: %w", err)
	}

	fmt.Printf("done: technician %s created with id %d\n", tech.Login, tech.ID)
	return nil
}
