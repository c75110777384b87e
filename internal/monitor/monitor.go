// Package monitor refreshes device status from reachability probes, on
// demand and on an optional cron schedule.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kavia-common/network-device-manager/internal/events"
	"github.com/kavia-common/network-device-manager/internal/observability"
	"github.com/kavia-common/network-device-manager/internal/ping"
	"github.com/kavia-common/network-device-manager/internal/store"
)

type Monitor struct {
	store   store.Store
	prober  ping.Prober
	timeout time.Duration
	sink    events.Sink
	now     func() time.Time

	cron *cron.Cron
}

func New(st store.Store, prober ping.Prober, timeout time.Duration, sink events.Sink) *Monitor {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Monitor{
		store:   st,
		prober:  prober,
		timeout: timeout,
		sink:    sink,
		now:     store.Now,
	}
}

// Refresh probes the device's address, persists the resulting status with a
// fresh updated_at and returns the re-read device.
func (m *Monitor) Refresh(ctx context.Context, id string) (*store.Device, error) {
	dev, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, dev)
}

func (m *Monitor) apply(ctx context.Context, dev *store.Device) (*store.Device, error) {
	reachable := m.prober.Probe(ctx, dev.IPAddress, m.timeout)
	observability.ObserveProbe(reachable)

	status := store.StatusOffline
	if reachable {
		status = store.StatusOnline
	}
	updated, err := m.store.SetStatus(ctx, dev.ID, status, m.now())
	if err != nil {
		return nil, err
	}
	m.sink.Publish(events.Event{Type: events.DeviceStatus, ID: updated.ID, Status: updated.Status, At: updated.UpdatedAt})
	slog.Debug("device probed", "id", updated.ID, "ip_address", updated.IPAddress, "status", status)
	return updated, nil
}

// Sweep probes every device sequentially. A failed device is logged and
// skipped. It returns how many devices were refreshed.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	devices, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list devices: %w", err)
	}
	refreshed := 0
	for i := range devices {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := m.apply(ctx, &devices[i]); err != nil {
			slog.Warn("sweep refresh failed", "id", devices[i].ID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// Start schedules Sweep on spec. Standard five-field expressions, an
// optional leading seconds field and descriptors such as "@every 5m" are
// accepted. A run that would overlap the previous one is skipped.
func (m *Monitor) Start(spec string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, m.runSweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	m.cron = c
	c.Start()
	slog.Info("ping sweep scheduled", "schedule", spec)
	return nil
}

func (m *Monitor) runSweep() {
	start := time.Now()
	n, err := m.Sweep(context.Background())
	if err != nil {
		slog.Error("ping sweep failed", "error", err)
		return
	}
	slog.Info("ping sweep finished", "devices", n, "took", time.Since(start).String())
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to
// expire.
func (m *Monitor) Stop(ctx context.Context) {
	if m.cron == nil {
		return
	}
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}
}
