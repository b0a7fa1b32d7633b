// Package loop provides the bounded iteration container action. The
// handler materializes the item list; invoking the body once per item is
// the engine's job.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

// Output keys read back by the execution engine.
const (
	OutputItems        = "items"
	OutputItemVariable = "item_variable"
	OutputLoopActionID = "loop_action_id"
)

// DefaultMaxIterations caps loops that declare no bound of their own.
const DefaultMaxIterations = 100

var (
	// ErrItemsRequired is returned when neither items nor items_path is set.
	ErrItemsRequired = errors.New("loop action requires 'items' or 'items_path'")
	// ErrLoopActionRequired is returned when the config names no body action.
	ErrLoopActionRequired = errors.New("loop action requires a 'loop_action_id'")
	// ErrNotAList is returned when items_path does not resolve to a list.
	ErrNotAList = errors.New("loop items_path did not resolve to a list")
	// ErrTooManyIterations is returned before any body invocation when the
	// materialized item list exceeds max_iterations.
	ErrTooManyIterations = errors.New("loop item count exceeds max_iterations")
)

// Action declares a sequential iteration over a list. Items come inline
// or from a template path into the context; the count is checked against
// max_iterations before the first body invocation.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "loop"
}

func (a *Action) DisplayName() string {
	return "Loop"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	_, hasItems := config["items"].([]any)
	itemsPath, _ := config["items_path"].(string)

	if !hasItems && itemsPath == "" {
		return ErrItemsRequired
	}

	loopActionID, _ := config["loop_action_id"].(string)
	if loopActionID == "" {
		return ErrLoopActionRequired
	}

	if max, ok := config["max_iterations"].(float64); ok && max < 1 {
		return fmt.Errorf("invalid max_iterations %v: must be at least 1", max)
	}

	// inline item lists are checked against the cap before any run
	if items, ok := config["items"].([]any); ok && len(items) > maxIterations(config) {
		return fmt.Errorf("%w: %d items, cap %d", ErrTooManyIterations, len(items), maxIterations(config))
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	items, err := materializeItems(config, execCtx)
	if err != nil {
		return nil, err
	}

	limit := maxIterations(config)
	if len(items) > limit {
		return nil, fmt.Errorf("%w: %d items, cap %d", ErrTooManyIterations, len(items), limit)
	}

	itemVariable, _ := config["item_variable"].(string)
	if itemVariable == "" {
		itemVariable = "item"
	}

	loopActionID, _ := config["loop_action_id"].(string)

	logger.InfoContext(ctx, "Materialized loop items",
		"action_type", "loop",
		"items", len(items),
		"item_variable", itemVariable,
		"loop_action_id", loopActionID)

	return map[string]any{
		OutputItems:        items,
		OutputItemVariable: itemVariable,
		OutputLoopActionID: loopActionID,
	}, nil
}

func materializeItems(config map[string]any, execCtx *models.ExecutionContext) ([]any, error) {
	if items, ok := config["items"].([]any); ok {
		return items, nil
	}

	itemsPath, _ := config["items_path"].(string)
	if itemsPath == "" {
		return nil, ErrItemsRequired
	}

	resolved := template.ResolveWithContext(itemsPath, execCtx)

	items, ok := resolved.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q resolved to %T", ErrNotAList, itemsPath, resolved)
	}

	return items, nil
}

func maxIterations(config map[string]any) int {
	if max, ok := config["max_iterations"].(float64); ok && max >= 1 {
		return int(max)
	}

	if max, ok := config["max_iterations"].(int); ok && max >= 1 {
		return max
	}

	return DefaultMaxIterations
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":        "array",
				"description": "Inline list to iterate over.",
			},
			"items_path": map[string]any{
				"type":        "string",
				"description": "Template path to a list in the context, e.g. {{steps.fetch.body.users}}.",
			},
			"item_variable": map[string]any{
				"type":        "string",
				"description": "Name the current item is exposed under inside the body.",
				"default":     "item",
			},
			"loop_action_id": map[string]any{
				"type":        "string",
				"description": "Body action invoked once per item.",
			},
			"max_iterations": map[string]any{
				"type":        "integer",
				"description": "Hard cap on the item count.",
				"default":     DefaultMaxIterations,
				"minimum":     1,
			},
		},
		"required": []string{"loop_action_id"},
	}
}
