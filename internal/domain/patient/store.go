package patient

import "context"

// Store loads and saves the whole patient collection as one unit. Save fully
// replaces what Load would return.
type Store interface {
	Load(ctx context.Context) (*Collection, error)
	Save(ctx context.Context, c *Collection) error
}

// Backend is a Store that can be created empty and health-checked.
type Backend interface {
	Store
	// Init creates an empty collection when none exists and reports whether
	// it did.
	Init(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
	Name() string
}
