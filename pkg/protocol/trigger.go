package protocol

import "context"

// Trigger is the registration contract for components that start
// workflow executions. The engine only consumes the execution rows a
// trigger creates; how they were created is the trigger's business.
type Trigger interface {
	// Register arms the trigger for a workflow.
	Register(ctx context.Context, workflowID string, config map[string]any) error

	// Unregister disarms the trigger for a workflow.
	Unregister(ctx context.Context, workflowID string) error

	// Validate checks a trigger config without registering it.
	Validate(config map[string]any) error
}
