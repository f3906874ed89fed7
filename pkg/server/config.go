package server

import (
	"fmt"
	"time"

	"github.com/lookupd/lookupd/pkg/api"
	"github.com/lookupd/lookupd/pkg/manager"
	"github.com/lookupd/lookupd/pkg/namespace"
)

// Config represents the complete lookupd server configuration
type Config struct {
	// Core settings
	Logging         string  `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr     string  `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	PProfAddr       *string `yaml:"pprofAddr"`

	// ShutdownTimeout bounds the graceful shutdown of the HTTP surfaces
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`

	// Components
	API     api.Config     `yaml:"api"`
	Manager manager.Config `yaml:"manager"`

	// Sources are shared source descriptors namespaces can reference by
	// name via source_ref instead of repeating connection details inline.
	Sources map[string]namespace.Source `yaml:"sources"`

	// Namespaces scheduled at startup. More can be registered and removed
	// at runtime through the API.
	Namespaces []namespace.Definition `yaml:"namespaces"`
}

// Validate validates the configuration. Source references are resolved into
// the definitions before they are validated.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}

	if err := c.Manager.Validate(); err != nil {
		return err
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	seen := make(map[string]struct{}, len(c.Namespaces))
	for i := range c.Namespaces {
		def := &c.Namespaces[i]

		if def.SourceRef != "" {
			src, ok := c.Sources[def.SourceRef]
			if !ok {
				return fmt.Errorf("namespace %q: unknown source_ref %q", def.Name, def.SourceRef)
			}
			def.Source = src
		}

		if err := def.Validate(); err != nil {
			return fmt.Errorf("namespace %q: %w", def.Name, err)
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("namespace %q: duplicate name", def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	return nil
}
