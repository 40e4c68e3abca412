package nginxproxy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Manager writes vhost files into sitesAvailable/sitesEnabled and reloads
// nginx, tracking the last-applied config hash per subdomain so an
// unchanged config never triggers an unnecessary reload.
type Manager struct {
	sitesAvailable string
	sitesEnabled   string
	reloadTimeout  time.Duration
	log            zerolog.Logger

	lastHash map[string]string
}

// NewManager builds a Manager writing vhosts under sitesAvailable, symlinked
// into sitesEnabled.
func NewManager(sitesAvailable, sitesEnabled string, log zerolog.Logger) *Manager {
	return &Manager{
		sitesAvailable: sitesAvailable,
		sitesEnabled:   sitesEnabled,
		reloadTimeout:  10 * time.Second,
		log:            log,
		lastHash:       make(map[string]string),
	}
}

// Apply writes v's vhost file, enables it, validates the full nginx config,
// and reloads nginx — skipping the reload if this subdomain's config is
// byte-identical to what's already applied (spec §4.3 step 9).
func (m *Manager) Apply(ctx context.Context, v VHost) error {
	config, hash, err := Render(v)
	if err != nil {
		return err
	}
	if m.lastHash[v.Subdomain] == hash {
		return nil
	}

	availablePath := filepath.Join(m.sitesAvailable, v.Subdomain+".conf")
	if err := os.WriteFile(availablePath, []byte(config), 0o644); err != nil {
		return fmt.Errorf("write vhost config: %w", err)
	}

	enabledPath := filepath.Join(m.sitesEnabled, v.Subdomain+".conf")
	_ = os.Remove(enabledPath)
	if err := os.Symlink(availablePath, enabledPath); err != nil {
		return fmt.Errorf("enable vhost symlink: %w", err)
	}

	if err := m.testAndReload(ctx); err != nil {
		return err
	}

	m.lastHash[v.Subdomain] = hash
	return nil
}

// Remove disables and deletes a project's vhost file, then reloads nginx.
func (m *Manager) Remove(ctx context.Context, subdomain string) error {
	enabledPath := filepath.Join(m.sitesEnabled, subdomain+".conf")
	availablePath := filepath.Join(m.sitesAvailable, subdomain+".conf")

	_ = os.Remove(enabledPath)
	_ = os.Remove(availablePath)
	delete(m.lastHash, subdomain)

	return m.testAndReload(ctx)
}

func (m *Manager) testAndReload(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(ctx, m.reloadTimeout)
	defer cancel()

	testCmd := exec.CommandContext(reloadCtx, "nginx", "-t")
	if output, err := testCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("nginx config validation failed: %w\n%s", err, output)
	}

	reloadCmd := exec.CommandContext(reloadCtx, "systemctl", "reload", "nginx")
	output, err := reloadCmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nginx reload failed: %w\n%s", err, output)
	}

	m.log.Info().Msg("nginx configuration reloaded")
	return nil
}
