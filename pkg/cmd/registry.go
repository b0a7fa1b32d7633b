package cmd

import (
	"log/slog"

	"github.com/loomhq/loom/pkg/registry"
)

// NewRegistry builds the action handler catalog with every built-in
// handler installed.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaults()

	return reg
}
