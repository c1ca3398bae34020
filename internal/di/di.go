// Package di provides a minimal service registry used to wire modules together.
package di

import "fmt"

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under name, resolving lazy factories.
	// It panics if the service does not exist; wiring bugs should fail loudly
	// at startup, not at runtime.
	Get(name string) any
}

// Container is the write side of the registry.
type Container interface {
	ServiceRegistry

	// Register stores an already-constructed service.
	Register(name string, svc any)

	// RegisterFactory stores a factory invoked once on first Get.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type container struct {
	services  map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services:  make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(name string, svc any) {
	c.services[name] = svc
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.factories[name] = factory
}

func (c *container) Get(name string) any {
	if svc, ok := c.services[name]; ok {
		return svc
	}
	if factory, ok := c.factories[name]; ok {
		svc := factory(c)
		c.services[name] = svc
		delete(c.factories, name)
		return svc
	}
	panic(fmt.Sprintf("di: service %q not registered", name))
}

// RegisterToken registers a typed factory under a token.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	c.RegisterFactory(token, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service registered under a token.
func GetToken[T any](sr ServiceRegistry, token string) T {
	svc, ok := sr.Get(token).(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type", token))
	}
	return svc
}
