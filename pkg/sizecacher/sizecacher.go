// Package sizecacher implements the size-cacher loop from spec §4.8:
// every configured interval, it measures the current cruise (and, if
// the warehouse shows lowering components, the current lowering) with
// `du -sb` and posts the byte count back to the control plane.
//
// Ground for the measure-then-post shape and the retry-on-failure
// behavior: spec §4.8's size-cacher paragraph, composed with the same
// `du -sb` subprocess pattern pkg/handlers uses for cruise/lowering
// directory sizing (cruise_lifecycle.go's duSB).
package sizecacher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/metrics"
	"github.com/oceandatatools/openvdm-go/pkg/storage"
)

const bucketName = "sizecacher"

// Cacher runs the periodic cruise/lowering size measurement loop.
type Cacher struct {
	ControlPlane *controlplane.Client
	Store        storage.Store // last-measured byte counts, keyed by cruiseID/loweringID
	Interval     time.Duration

	logger zerolog.Logger
}

// NewCacher wires a Cacher.
func NewCacher(cp *controlplane.Client, store storage.Store, interval time.Duration) *Cacher {
	return &Cacher{
		ControlPlane: cp,
		Store:        store,
		Interval:     interval,
		logger:       log.WithComponent("sizecacher"),
	}
}

// Run blocks, measuring and posting sizes every c.Interval, until ctx
// is cancelled. A failed cycle is logged and retried after the
// interval, per spec §4.8.
func (c *Cacher) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	c.cycle(ctx)
	for {
		select {
		case <-ticker.C:
			c.cycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cacher) cycle(ctx context.Context) {
	if err := c.measureAndPost(ctx); err != nil {
		metrics.SizeCacherFailuresTotal.Inc()
		c.logger.Error().Err(err).Msg("size-cacher cycle failed")
		return
	}
	metrics.SizeCacherCyclesTotal.Inc()
}

func (c *Cacher) measureAndPost(ctx context.Context) error {
	warehouse, err := c.ControlPlane.WarehouseConfig(ctx)
	if err != nil {
		return fmt.Errorf("lookup warehouse configuration: %w", err)
	}

	cruise, err := c.ControlPlane.CurrentCruise(ctx)
	if err != nil {
		return fmt.Errorf("lookup current cruise: %w", err)
	}
	if cruise.ID != "" {
		if err := c.measureAndPostOne(ctx, "cruise", cruise.ID, warehouse.CruiseDir(cruise.ID), c.ControlPlane.SetCruiseSize); err != nil {
			return err
		}
	}

	if !warehouse.ShowLoweringComponents {
		return nil
	}
	lowering, err := c.ControlPlane.CurrentLowering(ctx)
	if err != nil {
		return fmt.Errorf("lookup current lowering: %w", err)
	}
	if lowering.ID == "" {
		return nil
	}
	return c.measureAndPostOne(ctx, "lowering", lowering.ID, warehouse.LoweringDir(cruise.ID, lowering.ID), c.ControlPlane.SetLoweringSize)
}

func (c *Cacher) measureAndPostOne(ctx context.Context, kind, id, dir string, post func(context.Context, string, int64) error) error {
	bytes, err := duSB(ctx, dir)
	if err != nil {
		return fmt.Errorf("measure %s %s: %w", kind, id, err)
	}

	var last int64
	if ok, err := c.Store.Get(bucketName, id, &last); err == nil && ok && last == bytes {
		return nil // unchanged since last cycle, skip the API call
	}

	if err := post(ctx, id, bytes); err != nil {
		return fmt.Errorf("post %s size: %w", kind, err)
	}
	if err := c.Store.Put(bucketName, id, bytes); err != nil {
		c.logger.Warn().Err(err).Str("id", id).Msg("cache last-measured size")
	}

	c.logger.Info().Str("kind", kind).Str("id", id).Str("size", units.HumanSize(float64(bytes))).Msg("posted measured size")
	return nil
}

// duSB shells out to `du -sb dir` and parses the byte count from its
// first field.
func duSB(ctx context.Context, dir string) (int64, error) {
	out, err := exec.CommandContext(ctx, "du", "-sb", dir).Output()
	if err != nil {
		return 0, fmt.Errorf("du -sb %s: %w", dir, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, fmt.Errorf("du -sb %s: unparseable output %q", dir, out)
	}
	return strconv.ParseInt(fields[0], 10, 64)
}
