package config

import (
	"sync"
	"testing"
	"time"
)

func TestIsPermitted_DefaultRoleMap(t *testing.T) {
	cfg := &Config{roleMap: DefaultRoleMap(), cycleInterval: 30 * time.Second}

	if !cfg.IsPermitted(RoleAdministrator, OpThresholdWrite) {
		t.Fatalf("administrator should be permitted to write thresholds")
	}
	if cfg.IsPermitted(RoleObserver, OpThresholdWrite) {
		t.Fatalf("observer should not be permitted to write thresholds")
	}
	if !cfg.IsPermitted(RoleTechnician, OpMaintenanceWrite) {
		t.Fatalf("technician should be permitted to write maintenance")
	}
	if cfg.IsPermitted(Role("unknown"), OpExport) {
		t.Fatalf("unknown role should never be permitted")
	}
}

func TestSetCycleInterval_RoundTrip(t *testing.T) {
	cfg := &Config{cycleInterval: 30 * time.Second}
	cfg.SetCycleInterval(45 * time.Second)
	if got := cfg.CycleInterval(); got != 45*time.Second {
		t.Fatalf("got %v, want 45s", got)
	}
}

// TestConfig_ConcurrentReloadAndPermissionChecks exercises the exact
// pattern a settings-file reload and the HTTP auth gate share in
// production: one goroutine replacing roleMap while many others call
// IsPermitted. Both must go through Config's own mutex so this never
// becomes a concurrent map read/write.
func TestConfig_ConcurrentReloadAndPermissionChecks(t *testing.T) {
	cfg := &Config{roleMap: DefaultRoleMap(), cycleInterval: 30 * time.Second}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cfg.SetRoleMap(DefaultRoleMap())
			cfg.SetCycleInterval(time.Duration(i) * time.Second)
		}
		close(stop)
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					cfg.IsPermitted(RoleOperator, OpThresholdWrite)
					_ = cfg.CycleInterval()
				}
			}
		}()
	}

	wg.Wait()
}
