package main

import (
	"fmt"
	"strconv"

	"github.com/purrpawboutique/purr-paw-boutique/internal/config"
	"github.com/purrpawboutique/purr-paw-boutique/internal/repository"
)

type migrator interface {
	RunMigrations() error
}

func openStore(cfg *config.Config) (repository.OrderRepository, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return repository.NewMemoryRepository(), nil
	case config.DriverSQLite:
		return repository.NewSQLiteRepository(cfg.Store.SQLitePath)
	case config.DriverPostgres:
		pg := cfg.Store.Postgres
		port, err := strconv.Atoi(pg.Port)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres port %q: %w", pg.Port, err)
		}
		return repository.NewPostgresRepository(&repository.Credentials{
			Host:     pg.Host,
			Port:     port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
		})
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func migrate(store repository.OrderRepository) error {
	m, ok := store.(migrator)
	if !ok {
		return nil
	}
	if err := m.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
