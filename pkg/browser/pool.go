package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
)

// Pool holds live instances keyed by id. Removal closes the instance;
// there is no other way out of the pool.
type Pool struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	max       int
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewPool creates a pool capped at max live instances.
func NewPool(max int, m *metrics.Metrics) *Pool {
	logger, _ := logging.NewLogger("pool")
	return &Pool{
		instances: make(map[string]*Instance),
		max:       max,
		metrics:   m,
		logger:    logger,
	}
}

// Add registers a live instance. Fails when the pool is full or the id is
// already present.
func (p *Pool) Add(inst *Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.instances[inst.ID()]; exists {
		return fmt.Errorf("instance %s is already pooled", inst.ID())
	}
	if p.max > 0 && len(p.instances) >= p.max {
		return fmt.Errorf("maximum number of instances (%d) reached", p.max)
	}

	p.instances[inst.ID()] = inst
	p.metrics.LiveInstances.Set(float64(len(p.instances)))
	return nil
}

// Get returns the instance with the given id, if pooled.
func (p *Pool) Get(id string) (*Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instances[id]
	return inst, ok
}

// Remove closes and forgets an instance. Returns false when the id is
// unknown. The close itself never fails.
func (p *Pool) Remove(id string, force bool) bool {
	p.mu.Lock()
	inst, ok := p.instances[id]
	if ok {
		delete(p.instances, id)
		p.metrics.LiveInstances.Set(float64(len(p.instances)))
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	inst.Close(force)
	return true
}

// List returns a snapshot of every pooled instance.
func (p *Pool) List() []*Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		out = append(out, inst)
	}
	return out
}

// Len returns the number of live instances.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

// ReapIdle closes instances that report idle for the given threshold and
// returns how many were reaped. Unhealthy instances are reaped regardless
// of idleness.
func (p *Pool) ReapIdle(maxIdle time.Duration) int {
	reaped := 0
	for _, inst := range p.List() {
		if inst.Idle(maxIdle) || !inst.CheckHealth() {
			if p.Remove(inst.ID(), true) {
				p.logger.Infof("reaped instance %s (idle or unhealthy)", inst.ID())
				reaped++
			}
		}
	}
	return reaped
}

// CloseAll force-closes every instance. Used at shutdown.
func (p *Pool) CloseAll() {
	for _, inst := range p.List() {
		p.Remove(inst.ID(), true)
	}
}
