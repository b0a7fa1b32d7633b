package registry

import (
	"github.com/loomhq/loom/pkg/actions/conditional"
	"github.com/loomhq/loom/pkg/actions/email"
	"github.com/loomhq/loom/pkg/actions/httprequest"
	"github.com/loomhq/loom/pkg/actions/log"
	"github.com/loomhq/loom/pkg/actions/loop"
	"github.com/loomhq/loom/pkg/actions/parallel"
	"github.com/loomhq/loom/pkg/actions/transform"
	"github.com/loomhq/loom/pkg/actions/wait"
)

// RegisterDefaults installs every built-in action handler.
func (r *Registry) RegisterDefaults() {
	r.Register(log.NewAction())
	r.Register(httprequest.NewAction())
	r.Register(email.NewAction())
	r.Register(wait.NewAction())
	r.Register(transform.NewAction())
	r.Register(conditional.NewAction())
	r.Register(parallel.NewAction())
	r.Register(loop.NewAction())
}
