package cart

import "sync"

// Registry holds one cart per seller for the lifetime of the process.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[string]*Cart)}
}

// Update runs fn against the seller's cart while holding the registry lock,
// creating the cart on first use.
func (r *Registry) Update(sellerID string, fn func(c *Cart) error) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[sellerID]
	if !ok {
		c = New()
		r.carts[sellerID] = c
	}
	err := fn(c)
	return c.Snapshot(), err
}

func (r *Registry) Get(sellerID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[sellerID]
	if !ok {
		return New().Snapshot()
	}
	return c.Snapshot()
}

func (r *Registry) Drop(sellerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, sellerID)
}
