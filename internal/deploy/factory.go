package deploy

import (
	"fmt"

	"github.com/helvetia-cloud/worker/internal/config"
	"github.com/helvetia-cloud/worker/internal/docker"
	"github.com/helvetia-cloud/worker/internal/logging"
)

// Factory resolves the strategy for a service type.
type Factory struct {
	strategies []Strategy
}

func NewFactory(d docker.API, cfg *config.Config, log *logging.Logger) *Factory {
	builder := &builderRunner{docker: d, cfg: cfg, log: log}
	return &Factory{strategies: []Strategy{
		&DockerStrategy{docker: d, cfg: cfg, builder: builder},
		&StaticStrategy{builder: builder},
		&ComposeStrategy{cfg: cfg, builder: builder},
		&DatabaseStrategy{docker: d},
	}}
}

// Get returns the strategy claiming the type, or an error for unknown
// types so a malformed job fails before any side effect.
func (f *Factory) Get(serviceType string) (Strategy, error) {
	for _, s := range f.strategies {
		if s.CanHandle(serviceType) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no strategy for service type %q", serviceType)
}
