package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/patchgate/patchgate/internal/core"
	"github.com/patchgate/patchgate/internal/core/debug"
	"github.com/patchgate/patchgate/internal/gateway"
	"github.com/patchgate/patchgate/internal/journal"
	"github.com/patchgate/patchgate/internal/proxy"
	"github.com/patchgate/patchgate/internal/registry"
	"github.com/patchgate/patchgate/internal/web"
)

// Controller is the main entrypoint for the gateway. It's responsible for
// initializing the shared resources (registry, journal, logging), declaring
// one listener per registered version plus the proxy and web servers, and
// launching everything.
type Controller struct {
	Config *core.Config

	logger   *logrus.Logger
	wg       sync.WaitGroup
	registry *registry.Registry
	journal  *journal.Journal
}

func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which will be used by all sub-servers.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	if c.Config.Debugging.PprofEnabled {
		debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	// The registry snapshot everything else works from. A broken version
	// directory only costs that version; an empty root is terminal.
	c.registry, err = registry.Load(c.logger, c.Config.Patch.RootDir, c.Config.Patch.BaseManifest)
	if err != nil {
		return fmt.Errorf("error loading patch registry: %w", err)
	}

	if c.Config.Database.Enabled {
		c.journal, err = journal.Open(c.Config.Database.Filename, c.Config.Debugging.PacketLoggingEnabled)
		if err != nil {
			return fmt.Errorf("error opening request journal: %w", err)
		}
		defer c.journal.Close()
	}

	if err := c.run(ctx); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

// run starts one gateway frontend per registered version, then the proxy and
// the optional web API. A version whose port can't be bound is logged and
// excluded; it's terminal only if no listener comes up at all.
func (c *Controller) run(ctx context.Context) error {
	started := 0
	for _, version := range c.registry.Versions() {
		server := &frontend{
			Address: c.buildAddress(version.Port()),
			Config:  c.Config,
			Logger:  c.logger,
			Backend: &gateway.Server{
				Name:     fmt.Sprintf("GATEWAY-%d", version.ID),
				Config:   c.Config,
				Logger:   c.logger,
				Registry: c.registry,
				Version:  version,
				Journal:  c.journal,
			},
		}

		if err := server.Start(ctx, &c.wg); err != nil {
			c.logger.Errorf("excluding version %d: %v", version.ID, err)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no version listeners could be started")
	}

	proxyServer := &proxy.Server{Config: c.Config, Logger: c.logger, Registry: c.registry}
	if err := proxyServer.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting proxy: %w", err)
	}

	if c.Config.Web.HTTPPort != 0 {
		webServer := &web.Server{
			Config:   c.Config,
			Logger:   c.logger,
			Registry: c.registry,
			Journal:  c.journal,
		}
		if err := webServer.Start(ctx, &c.wg); err != nil {
			return fmt.Errorf("error starting web API: %w", err)
		}
	}

	return nil
}

func (c *Controller) buildAddress(port int) string {
	return fmt.Sprintf("%s:%v", c.Config.Hostname, port)
}
