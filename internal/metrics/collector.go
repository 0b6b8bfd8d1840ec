package metrics

import (
	"time"

	"github.com/vibetrees/controlplane/internal/diagnostics"
	"github.com/vibetrees/controlplane/internal/portregistry"
	"github.com/vibetrees/controlplane/internal/progressbus"
	"github.com/vibetrees/controlplane/internal/pty"
)

// Collector polls the registry, PTY manager, and progress bus on a ticker
// and republishes their current size as gauges, the same periodic-snapshot
// shape as cuemby-warren's pkg/metrics Collector.
type Collector struct {
	Ports *portregistry.Registry
	PTY   *pty.Manager
	Bus   *progressbus.Bus
	Diag  *diagnostics.Runner

	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector constructs a Collector. Any of Ports, PTY, Bus, or Diag may
// be nil, in which case that gauge is left unset rather than the whole
// collect cycle erroring out.
func NewCollector(ports *portregistry.Registry, ptyMgr *pty.Manager, bus *progressbus.Bus, diag *diagnostics.Runner) *Collector {
	return &Collector{Ports: ports, PTY: ptyMgr, Bus: bus, Diag: diag, interval: 15 * time.Second, stopCh: make(chan struct{})}
}

// Start begins the polling loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the polling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectPorts()
	c.collectPTY()
	c.collectBus()
}

func (c *Collector) collectPorts() {
	if c.Ports == nil {
		return
	}
	all := c.Ports.All()
	allocated := 0
	for _, ports := range all {
		allocated += len(ports)
	}
	PortAllocationsTotal.Set(float64(allocated))

	if c.Diag == nil {
		return
	}
	active, orphaned := 0, 0
	for name := range all {
		st := c.Diag.State(name)
		if st.Exists && st.Registered {
			active++
		} else {
			orphaned++
		}
	}
	WorktreesTotal.WithLabelValues("active").Set(float64(active))
	WorktreesTotal.WithLabelValues("orphaned").Set(float64(orphaned))
}

func (c *Collector) collectPTY() {
	if c.PTY == nil {
		return
	}
	ActivePTYSessions.Set(float64(len(c.PTY.List())))
}

func (c *Collector) collectBus() {
	if c.Bus == nil {
		return
	}
	ProgressSubscribers.Set(float64(c.Bus.SubscriberCount()))
}
