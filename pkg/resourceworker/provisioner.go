package resourceworker

import (
	"context"
	"fmt"
	"sync"
)

// Provisioner is the backend adapter the resource worker provisions
// through. Production deployments implement it against their
// infrastructure API; the default MemProvisioner keeps everything
// in-process and deterministic.
type Provisioner interface {
	// Provision creates a resource and returns its backend id.
	Provision(ctx context.Context, name string, spec map[string]any) (string, error)

	// Deprovision destroys a resource. Unknown ids are an error.
	Deprovision(ctx context.Context, id string) error

	// Scale sets the replica count of a resource.
	Scale(ctx context.Context, id string, replicas int) error
}

// MemProvisioner is an in-memory Provisioner with sequential ids
// ("res-1", "res-2", ...). It is the default backend and the one the
// tests run against.
type MemProvisioner struct {
	mu   sync.Mutex
	next int
	live map[string]int
}

// NewMemProvisioner returns an empty in-memory provisioner.
func NewMemProvisioner() *MemProvisioner {
	return &MemProvisioner{live: make(map[string]int)}
}

var _ Provisioner = (*MemProvisioner)(nil)

func (p *MemProvisioner) Provision(ctx context.Context, name string, spec map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next++
	id := fmt.Sprintf("res-%d", p.next)
	p.live[id] = 1
	return id, nil
}

func (p *MemProvisioner) Deprovision(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.live[id]; !ok {
		return fmt.Errorf("deprovision: unknown resource %q", id)
	}
	delete(p.live, id)
	return nil
}

func (p *MemProvisioner) Scale(ctx context.Context, id string, replicas int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if replicas < 0 {
		return fmt.Errorf("scale %q: replica count %d is negative", id, replicas)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.live[id]; !ok {
		return fmt.Errorf("scale: unknown resource %q", id)
	}
	p.live[id] = replicas
	return nil
}

// Replicas reports the replica count of a live resource.
func (p *MemProvisioner) Replicas(id string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.live[id]
	return n, ok
}

// Live reports how many resources currently exist.
func (p *MemProvisioner) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}
