// Package template resolves {{a.b.c}} path expressions against the
// execution context for dynamic action configuration.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Resolve substitutes every {{path}} token in input against data. An
// input that is exactly one token resolves to the value itself, type
// preserved; tokens embedded in a larger string are stringified. A path
// that misses leaves the original token untouched.
func Resolve(input string, data map[string]any) any {
	if match := tokenPattern.FindStringSubmatch(input); match != nil && match[0] == strings.TrimSpace(input) {
		if value, ok := lookup(data, match[1]); ok {
			return value
		}

		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]

		value, ok := lookup(data, path)
		if !ok {
			return token
		}

		return fmt.Sprintf("%v", value)
	})
}

// ResolveString is Resolve for callers that need a string result.
func ResolveString(input string, data map[string]any) string {
	return fmt.Sprintf("%v", Resolve(input, data))
}

// HasToken reports whether input contains at least one {{path}} token.
func HasToken(input string) bool {
	return tokenPattern.MatchString(input)
}

// ResolveWithContext resolves input against the standard data bag built
// from an execution context.
func ResolveWithContext(input string, execCtx *models.ExecutionContext) any {
	return Resolve(input, ContextData(execCtx))
}

// ContextData builds the resolution data bag for one branch of a run.
func ContextData(execCtx *models.ExecutionContext) map[string]any {
	data := map[string]any{
		"trigger": execCtx.TriggerData,
		"steps":   execCtx.StepResults(),
		"env":     envVars(),
		"execution": map[string]any{
			"id":          execCtx.ExecutionID,
			"workflow_id": execCtx.WorkflowID,
			"user_id":     execCtx.UserID,
		},
	}

	if loop := execCtx.Loop(); loop != nil {
		data["loop"] = map[string]any{
			"item":  loop.Item,
			"index": loop.Index,
		}

		if loop.ItemVariable != "" {
			data[loop.ItemVariable] = loop.Item
		}
	}

	return data
}

// lookup walks a generic map tree along a dot-separated path.
func lookup(data map[string]any, path string) (any, bool) {
	segments := strings.Split(strings.TrimSpace(path), ".")

	var current any = data

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
