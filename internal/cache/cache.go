// Package cache holds read-through caches for tenant listings. Every key is
// tenant scoped and belongs to a namespace, and writes invalidate whole
// namespaces after commit.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Namespace groups keys that are invalidated together
type Namespace string

const (
	NamespaceBatches Namespace = "batches"
	NamespaceAreas   Namespace = "areas"
	NamespaceStages  Namespace = "stages"
	NamespaceAlerts  Namespace = "alerts"
)

// Key identifies a cached value
type Key struct {
	TenantID  uuid.UUID
	Namespace Namespace
	Name      string
}

// NewKey builds a key
func NewKey(tenantID uuid.UUID, ns Namespace, name string) Key {
	return Key{TenantID: tenantID, Namespace: ns, Name: name}
}

func (k Key) String() string {
	return fmt.Sprintf("cultivation:%s:%s:%s", k.TenantID, k.Namespace, k.Name)
}

func namespaceSet(tenantID uuid.UUID, ns Namespace) string {
	return fmt.Sprintf("cultivation:%s:%s:keys", tenantID, ns)
}

// Cache stores JSON-serializable values
type Cache interface {
	// Get decodes the value for key into dest and reports whether it was found
	Get(ctx context.Context, key Key, dest interface{}) (bool, error)
	Set(ctx context.Context, key Key, value interface{}, ttl time.Duration) error
	// Invalidate drops every key of the given namespaces for a tenant
	Invalidate(ctx context.Context, tenantID uuid.UUID, namespaces ...Namespace) error
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(context.Context, Key, interface{}) (bool, error) { return false, nil }
func (Noop) Set(context.Context, Key, interface{}, time.Duration) error { return nil }
func (Noop) Invalidate(context.Context, uuid.UUID, ...Namespace) error { return nil }
