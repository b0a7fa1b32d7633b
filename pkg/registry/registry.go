// Package registry holds the catalog of action handlers available to the
// execution engine. Handlers register once at process start and are looked
// up by type while workflows run.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomhq/loom/pkg/protocol"
)

type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]protocol.Action
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		handlers: make(map[string]protocol.Action),
	}
}

// Register adds a handler under its Type(). A later registration with the
// same type replaces the earlier one.
func (r *Registry) Register(handler protocol.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Type()] = handler
}

func (r *Registry) Get(actionType string) (protocol.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return handler, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for actionType := range r.handlers {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

// ValidateActionConfig runs the handler's own ValidateConfig and, when the
// handler publishes a JSON schema, checks the config against it as well.
func (r *Registry) ValidateActionConfig(actionType string, config map[string]any) error {
	handler, err := r.Get(actionType)
	if err != nil {
		return err
	}

	if err := handler.ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid config for action type '%s': %w", actionType, err)
	}

	provider, ok := handler.(protocol.SchemaProvider)
	if !ok {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(provider.Schema()),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation for action type '%s': %w", actionType, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			messages = append(messages, verr.String())
		}

		return fmt.Errorf("invalid config for action type '%s': %s", actionType, strings.Join(messages, "; "))
	}

	return nil
}
