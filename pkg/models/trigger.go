package models

// Trigger describes what starts a workflow. The engine never fires
// triggers itself; it only consumes the executions they create.
type Trigger struct {
	Type   string         `json:"type" validate:"required"`
	Config map[string]any `json:"config"`
}
