package blob

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
)

// FakeClient is an in-memory Client for tests. Objects are stored by
// container-relative path; ListErrs simulates per-prefix listing failures
// and DeleteErr a flat deletion failure.
type FakeClient struct {
	mu        sync.Mutex
	objects   map[string]struct{}
	ListErrs  map[string]error
	DeleteErr error
	Deleted   []string
}

// NewFakeClient returns a FakeClient seeded with the given object paths.
func NewFakeClient(paths ...string) *FakeClient {
	c := &FakeClient{objects: make(map[string]struct{})}
	for _, p := range paths {
		c.objects[p] = struct{}{}
	}
	return c
}

// Put adds an object.
func (c *FakeClient) Put(relativePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[relativePath] = struct{}{}
}

// List returns the seeded objects under prefix, sorted for determinism.
func (c *FakeClient) List(_ context.Context, prefix string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.ListErrs[prefix]; ok {
		return nil, err
	}
	var entries []Entry
	for p := range c.objects {
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			entries = append(entries, Entry{Name: path.Base(p), RelativePath: p})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelativePath < entries[j].RelativePath })
	return entries, nil
}

// Delete removes an object, recording the path. Absent objects are fine.
func (c *FakeClient) Delete(_ context.Context, relativePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	delete(c.objects, relativePath)
	c.Deleted = append(c.Deleted, relativePath)
	return nil
}

// Has reports whether an object is still present.
func (c *FakeClient) Has(relativePath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.objects[relativePath]
	return ok
}
