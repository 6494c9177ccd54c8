package cmd

import (
	"log/slog"

	"github.com/dukex/assetflow/pkg/catalog"
	"github.com/dukex/assetflow/pkg/models"
	"github.com/dukex/assetflow/pkg/notify"
	"github.com/dukex/assetflow/pkg/reconcile"
	"github.com/dukex/assetflow/pkg/registry"
)

// RegistryConfig selects the handlers wired next to the defaults.
type RegistryConfig struct {
	Reconciler    *reconcile.Reconciler
	NotifyURL     string
	NotifyHeaders map[string]string
	NotifyRetry   notify.RetryConfig
}

// NewRegistry registers the default handlers, the sync handler when a
// reconciler is given and the HTTP notifier when a URL is configured.
func NewRegistry(log *slog.Logger, cfg RegistryConfig) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaults()

	if cfg.Reconciler != nil {
		reg.Register(models.UnitKindSyncTarget,
			reconcile.NewHandler(cfg.Reconciler, catalog.ResourceLanaCorePG, catalog.ResourceDW))
	}

	if cfg.NotifyURL != "" {
		handler, err := notify.NewHandler(cfg.NotifyURL, cfg.NotifyHeaders, cfg.NotifyRetry)
		if err != nil {
			return nil, err
		}

		reg.Register(models.UnitKindNotifier, handler)
	}

	log.Info("Registered handlers", "kinds", reg.Kinds())

	return reg, nil
}
