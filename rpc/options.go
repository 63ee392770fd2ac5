package rpc

import (
	"time"

	"github.com/ozontech/bulkrpc/consts"
)

type config struct {
	bootstrap        bool
	bootstrapTimeout time.Duration
	pendingShards    int
}

func defaultConfig() config {
	return config{
		bootstrap:        true,
		bootstrapTimeout: time.Second,
		pendingShards:    consts.DefaultPendingShards,
	}
}

type Opt interface {
	apply(*config)
}

type withoutBootstrap struct{}

func (withoutBootstrap) apply(c *config) { c.bootstrap = false }

// WithoutBootstrap skips the method table request; every call is sent by
// name.
func WithoutBootstrap() Opt { return withoutBootstrap{} }

// WithBootstrapTimeout limits the method table request.
type WithBootstrapTimeout time.Duration

func (o WithBootstrapTimeout) apply(c *config) { c.bootstrapTimeout = time.Duration(o) }

type WithPendingShards int

func (o WithPendingShards) apply(c *config) { c.pendingShards = int(o) }
