package template

import (
	"testing"

	"github.com/loomhq/loom/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestResolve_SingleToken(t *testing.T) {
	data := map[string]any{
		"trigger": map[string]any{
			"status": "ok",
			"count":  float64(3),
			"nested": map[string]any{"flag": true},
		},
	}

	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{"string value", "{{trigger.status}}", "ok"},
		{"number value preserved", "{{trigger.count}}", float64(3)},
		{"bool value preserved", "{{trigger.nested.flag}}", true},
		{"whole map", "{{trigger.nested}}", map[string]any{"flag": true}},
		{"whitespace inside braces", "{{ trigger.status }}", "ok"},
		{"miss returns original token", "{{trigger.missing}}", "{{trigger.missing}}"},
		{"miss through non-map", "{{trigger.status.deeper}}", "{{trigger.status.deeper}}"},
		{"no token passes through", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.input, data))
		})
	}
}

func TestResolve_EmbeddedTokens(t *testing.T) {
	data := map[string]any{
		"trigger": map[string]any{"user": "ada", "id": float64(7)},
	}

	result := Resolve("hello {{trigger.user}}, id={{trigger.id}}", data)
	assert.Equal(t, "hello ada, id=7", result)

	result = Resolve("{{trigger.user}}/{{trigger.missing}}", data)
	assert.Equal(t, "ada/{{trigger.missing}}", result)
}

func TestHasToken(t *testing.T) {
	assert.True(t, HasToken("{{steps.a.body}}"))
	assert.False(t, HasToken("no tokens here"))
}

func TestResolveWithContext(t *testing.T) {
	execCtx := models.NewExecutionContext("exec-1", "wf-1", "user-1",
		map[string]any{"status": "ok"}, nil)
	execCtx.SetStepResult("fetch", map[string]any{"body": map[string]any{"name": "loom"}})

	assert.Equal(t, "ok", ResolveWithContext("{{trigger.status}}", execCtx))
	assert.Equal(t, "loom", ResolveWithContext("{{steps.fetch.body.name}}", execCtx))
	assert.Equal(t, "exec-1", ResolveWithContext("{{execution.id}}", execCtx))
}

func TestResolveWithContext_LoopScope(t *testing.T) {
	execCtx := models.NewExecutionContext("exec-1", "wf-1", "user-1", nil, nil)
	scoped := execCtx.WithLoop(&models.LoopContext{
		Item:         map[string]any{"sku": "A-1"},
		Index:        2,
		ItemVariable: "product",
	})

	assert.Equal(t, 2, ResolveWithContext("{{loop.index}}", scoped))
	assert.Equal(t, "A-1", ResolveWithContext("{{product.sku}}", scoped))
	assert.Equal(t, "A-1", ResolveWithContext("{{loop.item.sku}}", scoped))

	// the parent context has no loop scope
	assert.Equal(t, "{{loop.index}}", ResolveWithContext("{{loop.index}}", execCtx))
}
