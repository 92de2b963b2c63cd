package registry

import (
	"fmt"
	"sync"
)

// ServiceEventCallback observes every registered service's lifecycle
// transitions. It is installed as each service's state-change callback,
// replacing any callback the service had before.
type ServiceEventCallback func(serviceName string, oldState, newState State)

type serviceInfo struct {
	service      Service
	dependents   []string
	config       map[string]string
}

// Registry is the gateway's service registry: named services with dependency
// injection, cycle-checked startup ordering, and lifecycle fan-out.
type Registry struct {
	mu       sync.Mutex
	services map[string]*serviceInfo

	globalConfig map[string]string
	eventCB      ServiceEventCallback
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		services:     map[string]*serviceInfo{},
		globalConfig: map[string]string{},
	}
}

// RegisterService adds svc under its own Name(). svc is recorded as a
// dependent only of dependencies that are already registered;
// ResolveDependencies checks the full graph regardless of registration order.
func (r *Registry) RegisterService(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := svc.Name()
	r.services[name] = &serviceInfo{service: svc, config: map[string]string{}}

	for _, dep := range svc.Dependencies() {
		if info, ok := r.services[dep]; ok {
			info.dependents = append(info.dependents, name)
		}
	}

	if r.eventCB != nil {
		svc.SetStateChangeCallback(func(n string, oldState, newState State) {
			r.eventCB(n, oldState, newState)
		})
	}
}

// UnregisterService removes a service from the registry. It does not stop
// or shut it down first.
func (r *Registry) UnregisterService(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

// GetService returns the named service, or (nil, false).
func (r *Registry) GetService(name string) (Service, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.services[name]
	if !ok {
		return nil, false
	}
	return info.service, true
}

// IsServiceRegistered reports whether name is registered.
func (r *Registry) IsServiceRegistered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.services[name]
	return ok
}

// RegisteredServices lists every registered name, in no particular order.
func (r *Registry) RegisteredServices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// ServiceDependents lists the names of services that declared name as a
// dependency.
func (r *Registry) ServiceDependents(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.services[name]
	if !ok {
		return nil
	}
	out := make([]string, len(info.dependents))
	copy(out, info.dependents)
	return out
}

// SetServiceEventCallback installs a global observer and attaches it to
// every already-registered service.
func (r *Registry) SetServiceEventCallback(cb ServiceEventCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventCB = cb
	for name, info := range r.services {
		n := name
		info.service.SetStateChangeCallback(func(_ string, oldState, newState State) {
			cb(n, oldState, newState)
		})
	}
}

// SetGlobalConfiguration merges cfg into the global configuration layer
// without removing unrelated existing keys.
func (r *Registry) SetGlobalConfiguration(cfg map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range cfg {
		r.globalConfig[k] = v
	}
}

// SetServiceConfiguration merges cfg into name's configuration (global
// keys first, then service-specific overrides) and applies it.
func (r *Registry) SetServiceConfiguration(name string, cfg map[string]string) error {
	r.mu.Lock()
	info, ok := r.services[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("registry: unknown service %q", name)
	}
	merged := map[string]string{}
	for k, v := range r.globalConfig {
		merged[k] = v
	}
	for k, v := range info.config {
		merged[k] = v
	}
	for k, v := range cfg {
		merged[k] = v
		info.config[k] = v
	}
	svc := info.service
	r.mu.Unlock()

	svc.SetConfiguration(merged)
	return nil
}

// validateDependencies reports every dependency name that is referenced
// but not registered.
func (r *Registry) validateDependencies() []string {
	var missing []string
	for name, info := range r.services {
		for _, dep := range info.service.Dependencies() {
			if _, ok := r.services[dep]; !ok {
				missing = append(missing, fmt.Sprintf("%s -> %s", name, dep))
			}
		}
	}
	return missing
}

// hasCycle runs DFS with a recursion stack to detect dependency cycles.
func (r *Registry) hasCycle(name string, visited, stack map[string]bool) bool {
	visited[name] = true
	stack[name] = true

	info := r.services[name]
	if info != nil {
		for _, dep := range info.service.Dependencies() {
			if _, ok := r.services[dep]; !ok {
				continue
			}
			if stack[dep] {
				return true
			}
			if !visited[dep] && r.hasCycle(dep, visited, stack) {
				return true
			}
		}
	}
	stack[name] = false
	return false
}

// ResolveDependencies validates that every declared dependency exists and
// that the dependency graph is acyclic.
func (r *Registry) ResolveDependencies() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if missing := r.validateDependencies(); len(missing) > 0 {
		return fmt.Errorf("registry: unresolved dependencies: %v", missing)
	}

	visited := map[string]bool{}
	stack := map[string]bool{}
	for name := range r.services {
		if !visited[name] && r.hasCycle(name, visited, stack) {
			return fmt.Errorf("registry: dependency cycle detected involving %q", name)
		}
	}
	return nil
}

// StartupOrder returns service names via Kahn's algorithm on the
// dependency graph: every name appears after all of its dependencies.
func (r *Registry) StartupOrder() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startupOrderLocked()
}

func (r *Registry) startupOrderLocked() ([]string, error) {
	inDegree := map[string]int{}
	adj := map[string][]string{} // dep -> dependents
	for name := range r.services {
		inDegree[name] = 0
	}
	for name, info := range r.services {
		for _, dep := range info.service.Dependencies() {
			if _, ok := r.services[dep]; !ok {
				return nil, fmt.Errorf("registry: service %q depends on unregistered %q", name, dep)
			}
			adj[dep] = append(adj[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sortStrings(queue)

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		var freed []string
		for _, dependent := range adj[n] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sortStrings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(r.services) {
		return nil, fmt.Errorf("registry: dependency cycle prevents a total startup order")
	}
	return order, nil
}

// sortStrings is a tiny insertion sort; keeps StartupOrder deterministic
// without pulling in sort for a handful of elements at a time.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
