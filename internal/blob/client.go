// Package blob reconciles locally observed session artifacts against their
// remote object-storage mirror. Remote storage is best-effort: listing and
// deletion failures degrade the inventory but never block the local
// session lifecycle.
package blob

import "context"

// Entry is one remote object under a listed prefix.
type Entry struct {
	Name         string // last path segment
	RelativePath string // path relative to the container root
}

// Client is the object-storage capability the reconciler consumes.
type Client interface {
	// List resolves a directory-like prefix to the objects under it.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Delete removes the object at the container-relative path.
	// Deleting an absent object is not an error.
	Delete(ctx context.Context, relativePath string) error
}

// Disabled is the Client for deployments without a configured mirror:
// listings are empty and deletes succeed trivially.
type Disabled struct{}

func (Disabled) List(context.Context, string) ([]Entry, error) { return nil, nil }
func (Disabled) Delete(context.Context, string) error          { return nil }
