// Package store provides the device stores the discovery manager persists
// devices through: a YAML store backed by the configuration registry and
// a SQLite store.
package store

import (
	"fmt"

	"github.com/muurk/castscan/internal/config"
	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/service"
)

// Store is a discovery.Store that can also list and release what it holds
type Store interface {
	discovery.Store
	// Records returns every persisted device, ordered by ID.
	Records() ([]device.Record, error)
	Close() error
}

// Open returns the store selected in the registry preferences. It returns
// nil for the "none" backend.
func Open(reg *config.Registry) (Store, error) {
	backend := config.StoreYAML
	if reg.Preferences != nil {
		backend = reg.Preferences.Store
	}
	switch backend {
	case config.StoreYAML:
		return NewYAML(reg), nil
	case config.StoreSQLite:
		s, err := OpenSQLite(reg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store %q", backend)
	}
}

// serviceConfig looks up the persisted config of a sighting in rec
func serviceConfig(rec *device.Record, desc *service.Description) *service.Config {
	if rec == nil || desc == nil {
		return nil
	}
	cfg, ok := rec.ServiceConfig(desc.UUID)
	if !ok {
		return nil
	}
	return cfg
}
