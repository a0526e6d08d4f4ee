// Package di provides dependency injection container
package di

import (
	"log/slog"

	"github.com/ssargent/glogstore/pkg/api" //nolint:depguard
	"github.com/ssargent/glogstore/pkg/store"
)

// Container holds all the dependencies for the application
type Container struct {
	logger        *slog.Logger
	serverFactory api.ServerFactory
	newRegistry   func(opts ...store.Option) *store.Registry
}

// NewContainer creates a new dependency injection container
func NewContainer(logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	return &Container{
		logger:        logger,
		serverFactory: api.NewServerFactory(),
		newRegistry:   store.NewRegistry,
	}
}

// Logger returns the application logger
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// SetLogger replaces the application logger
func (c *Container) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// NewRegistry creates an instance registry that logs through the container
// logger. Caller options are applied last.
func (c *Container) NewRegistry(opts ...store.Option) *store.Registry {
	return c.newRegistry(append([]store.Option{store.WithLogger(c.logger)}, opts...)...)
}

// SetRegistryFactory allows overriding registry construction (for testing)
func (c *Container) SetRegistryFactory(f func(opts ...store.Option) *store.Registry) {
	c.newRegistry = f
}
