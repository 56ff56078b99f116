package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/vpnda/sparebank-sync/pkg/config"
)

var ErrInstanceNotFound = errors.New("instance not found")

// Instance is one configured bank connection and the coordinator serving it.
type Instance struct {
	ID          string
	Config      config.InstanceConfig
	Coordinator *Coordinator
}

// Registry maps instance ids to their coordinators. It is passed to
// whatever needs to look up an instance instead of living in a global.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewRegistry() *Registry {
	return &Registry{instances: map[string]*Instance{}}
}

// Register adds inst, replacing any instance with the same id.
func (r *Registry) Register(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.ID] = inst
}

func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// List returns the instances ordered by id.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := lo.Values(r.instances)
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}
