package main

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/config"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/discovery/mdns"
	"github.com/muurk/castscan/internal/discovery/ssdp"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/metrics"
	"github.com/muurk/castscan/internal/store"
)

// app wires configuration, the device store and the discovery manager
type app struct {
	registry *config.Registry
	store    store.Store
	metrics  *metrics.Metrics
	manager  *discovery.Manager
}

// loadRegistry loads --config, or the default configuration file
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newApp builds a manager with SSDP and mDNS providers and registers the
// default services plus the mDNS types picked by resolveMDNSTypes.
func newApp(mdnsFlag []string) (*app, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// Overrides apply to this run only and must not be saved with the registry.
	p := *reg.Preferences
	prefs := &p
	if ifaceName != "" {
		prefs.Interface = ifaceName
	}

	mdnsTypes := resolveMDNSTypes(mdnsFlag, prefs)

	st, err := store.Open(reg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	opts, err := prefs.ManagerOptions()
	if err != nil {
		return nil, multierr.Append(err, closeStore(st))
	}
	opts = append(opts,
		discovery.WithStore(st),
		discovery.WithMetrics(m),
		discovery.WithProviderFactory(discovery.KindSSDP, ssdp.Factory(
			ssdp.WithInterface(prefs.Interface),
			ssdp.WithMetrics(m),
		)),
		discovery.WithProviderFactory(discovery.KindMDNS, mdns.Factory(
			mdns.WithInterface(prefs.Interface),
			mdns.WithMetrics(m),
		)),
	)
	a := &app{registry: reg, store: st, metrics: m, manager: discovery.NewManager(opts...)}

	err = a.manager.RegisterDefaultServices()
	for _, t := range mdnsTypes {
		err = multierr.Append(err, a.manager.RegisterDeviceService(mdns.NewServiceProvider(t), discovery.KindMDNS))
	}
	if err != nil {
		return nil, multierr.Append(err, a.close())
	}

	logging.Debug("Discovery configured",
		zap.String("config", reg.Path()),
		zap.String("store", prefs.Store),
		zap.String("interface", prefs.Interface),
		zap.Strings("mdns_types", mdnsTypes),
		zap.Duration("rescan_interval", prefs.RescanInterval),
	)
	return a, nil
}

// resolveMDNSTypes picks the mDNS types to browse: flag values first, then
// preferences, then the defaults. "none" disables mDNS.
func resolveMDNSTypes(flagTypes []string, prefs *config.Preferences) []string {
	types := flagTypes
	if len(types) == 0 {
		types = prefs.MDNSTypes
	}
	if len(types) == 0 {
		types = mdns.DefaultTypes
	}
	if len(types) == 1 && types[0] == "none" {
		return nil
	}
	return types
}

func (a *app) close() error {
	err := a.manager.Close()
	return multierr.Append(err, closeStore(a.store))
}

func closeStore(st store.Store) error {
	if st == nil {
		return nil
	}
	return st.Close()
}
