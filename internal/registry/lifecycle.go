package registry

import "fmt"

// InitializeAll initializes every service in startup order, aborting on
// the first failure (forward lifecycle operations abort-on-failure).
func (r *Registry) InitializeAll() error {
	return r.forEachInOrder(func(svc Service) error {
		svc.SetState(StateInitializing)
		if err := svc.Initialize(); err != nil {
			svc.SetState(StateError)
			return fmt.Errorf("registry: initialize %q: %w", svc.Name(), err)
		}
		svc.SetState(StateInitialized)
		return nil
	})
}

// StartAll starts every service in startup order, aborting on the first
// failure.
func (r *Registry) StartAll() error {
	return r.forEachInOrder(func(svc Service) error {
		svc.SetState(StateStarting)
		if err := svc.Start(); err != nil {
			svc.SetState(StateError)
			return fmt.Errorf("registry: start %q: %w", svc.Name(), err)
		}
		svc.SetState(StateRunning)
		return nil
	})
}

// StopAll stops every service in reverse startup order, best-effort:
// a failure is recorded but does not prevent the remaining services from
// being stopped too. All errors encountered are joined into one.
func (r *Registry) StopAll() error {
	return r.forEachInReverseOrder(func(svc Service) error {
		svc.SetState(StateStopping)
		if err := svc.Stop(); err != nil {
			svc.SetState(StateError)
			return fmt.Errorf("stop %q: %w", svc.Name(), err)
		}
		svc.SetState(StateStopped)
		return nil
	})
}

// ShutdownAll shuts down every service in reverse startup order,
// best-effort like StopAll.
func (r *Registry) ShutdownAll() error {
	return r.forEachInReverseOrder(func(svc Service) error {
		if err := svc.Shutdown(); err != nil {
			return fmt.Errorf("shutdown %q: %w", svc.Name(), err)
		}
		return nil
	})
}

func (r *Registry) forEachInOrder(fn func(Service) error) error {
	order, err := r.StartupOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		svc, ok := r.GetService(name)
		if !ok {
			continue
		}
		if err := fn(svc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) forEachInReverseOrder(fn func(Service) error) error {
	order, err := r.StartupOrder()
	if err != nil {
		return err
	}
	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		svc, ok := r.GetService(order[i])
		if !ok {
			continue
		}
		if err := fn(svc); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := "registry: "
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return fmt.Errorf("%s", msg)
}

// InitializeService initializes a single named service.
func (r *Registry) InitializeService(name string) error {
	svc, ok := r.GetService(name)
	if !ok {
		return fmt.Errorf("registry: unknown service %q", name)
	}
	return svc.Initialize()
}

// StartService starts a single named service.
func (r *Registry) StartService(name string) error {
	svc, ok := r.GetService(name)
	if !ok {
		return fmt.Errorf("registry: unknown service %q", name)
	}
	return svc.Start()
}

// StopService stops a single named service.
func (r *Registry) StopService(name string) error {
	svc, ok := r.GetService(name)
	if !ok {
		return fmt.Errorf("registry: unknown service %q", name)
	}
	return svc.Stop()
}

// ShutdownService shuts down a single named service.
func (r *Registry) ShutdownService(name string) error {
	svc, ok := r.GetService(name)
	if !ok {
		return fmt.Errorf("registry: unknown service %q", name)
	}
	return svc.Shutdown()
}

// ServiceStates returns every registered service's current state.
func (r *Registry) ServiceStates() map[string]State {
	r.mu.Lock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.Unlock()

	out := map[string]State{}
	for _, name := range names {
		if svc, ok := r.GetService(name); ok {
			out[name] = svc.State()
		}
	}
	return out
}

// ServiceHealthStatus returns every registered service's IsHealthy().
func (r *Registry) ServiceHealthStatus() map[string]bool {
	r.mu.Lock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.Unlock()

	out := map[string]bool{}
	for _, name := range names {
		if svc, ok := r.GetService(name); ok {
			out[name] = svc.IsHealthy()
		}
	}
	return out
}

// AllServicesHealthy reports whether every registered service reports
// healthy.
func (r *Registry) AllServicesHealthy() bool {
	for _, healthy := range r.ServiceHealthStatus() {
		if !healthy {
			return false
		}
	}
	return true
}
