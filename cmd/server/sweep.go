package main

import (
	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/storage"
)

func runSweep() error {
	cfg, _, err := loadConfig(false)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	removed, err := store.Sweep()
	if err != nil {
		return err
	}
	log := logging.WithComponent("cli")
	log.Info().Int("removed", removed).Msg("sweep finished")
	return nil
}
