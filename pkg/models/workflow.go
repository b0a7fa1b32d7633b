// Package models defines the core domain models for workflow automation.
package models

import "time"

// Workflow represents a trigger plus an ordered set of linked actions.
// A workflow is immutable during a single execution.
type Workflow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"    validate:"required"`
	Name      string    `json:"name"       validate:"required,min=3"`
	Enabled   bool      `json:"enabled"`
	Trigger   *Trigger  `json:"trigger"    validate:"required"`
	Actions   []*Action `json:"actions"    validate:"dive,required"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionByID returns the action with the given id, if present.
func (w *Workflow) ActionByID(id string) (*Action, bool) {
	for _, action := range w.Actions {
		if action.ID == id {
			return action, true
		}
	}

	return nil, false
}

// ActionMap builds an id -> action index for graph traversal.
func (w *Workflow) ActionMap() map[string]*Action {
	actions := make(map[string]*Action, len(w.Actions))
	for _, action := range w.Actions {
		actions[action.ID] = action
	}

	return actions
}

// RootActions returns the entry points of the action graph: actions with
// order 0 that are neither referenced by another action's next_action_id
// nor contained in a parallel/loop body.
func (w *Workflow) RootActions() []*Action {
	referenced := make(map[string]bool)

	for _, action := range w.Actions {
		if action.NextActionID != nil {
			referenced[*action.NextActionID] = true
		}
	}

	roots := make([]*Action, 0, 1)

	for _, action := range w.Actions {
		if action.Order != 0 || action.ParentActionID != nil || referenced[action.ID] {
			continue
		}

		roots = append(roots, action)
	}

	return roots
}
