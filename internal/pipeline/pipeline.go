// Package pipeline orchestrates the per-unit forcing transformation:
// derive → aggregate → resample → normalize → write, where a unit is one
// (variable, year) pair. Units are independent end-to-end and run on a
// worker pool; a failure in one never aborts its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thchilly/era5-forcing-etl/internal/aggregate"
	"github.com/thchilly/era5-forcing-etl/internal/derive"
	"github.com/thchilly/era5-forcing-etl/internal/grid"
	"github.com/thchilly/era5-forcing-etl/internal/meta"
	"github.com/thchilly/era5-forcing-etl/internal/observability"
	"github.com/thchilly/era5-forcing-etl/internal/regrid"
)

// FieldReader loads one variable's hourly field for one year.
type FieldReader interface {
	ReadHourly(ctx context.Context, variableID string, year int) (*grid.Field, error)
}

// FieldWriter persists one daily field for one year.
type FieldWriter interface {
	WriteDaily(ctx context.Context, f *grid.Field, year int) error
}

// Unit is one independently schedulable (variable, year) work item.
type Unit struct {
	Variable string
	Year     int
}

func (u Unit) String() string {
	return fmt.Sprintf("%s/%d", u.Variable, u.Year)
}

// UnitError records one unit's failure for the batch report.
type UnitError struct {
	Unit Unit
	Err  error
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Unit, e.Err)
}

// Report summarizes a batch run. Failed units hit fatal errors; Skipped
// units hit recoverable pairing failures and were passed over.
type Report struct {
	Failed  []UnitError
	Skipped []UnitError
}

// Processor runs the stage sequence for single units.
type Processor struct {
	reader  FieldReader
	writer  FieldWriter
	cache   *regrid.Cache
	target  grid.Def
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewProcessor creates a Processor writing onto the target grid.
func NewProcessor(r FieldReader, w FieldWriter, cache *regrid.Cache, target grid.Def,
	logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		reader:  r,
		writer:  w,
		cache:   cache,
		target:  target,
		logger:  logger,
		metrics: metrics,
	}
}

// ProcessUnit runs one unit end to end. A *derive.PairingError return
// means the unit was skipped, not failed.
func (p *Processor) ProcessUnit(ctx context.Context, u Unit) error {
	if _, err := grid.PolicyFor(u.Variable); err != nil {
		return err
	}

	var hourly *grid.Field
	var err error
	switch u.Variable {
	case "huss", "hurs":
		hourly, err = p.deriveHumidity(ctx, u)
	case "sfcwind":
		hourly, err = p.deriveWindSpeed(ctx, u)
	case "tasrange":
		// tasrange is derived from daily fields after resampling, not
		// from an hourly series of its own.
		return p.processRange(ctx, u)
	default:
		hourly, err = p.readHourly(ctx, u.Variable, u.Year)
	}
	if err != nil {
		return err
	}

	daily, err := p.toDailyCoarse(ctx, u, hourly)
	if err != nil {
		return err
	}
	return p.write(ctx, u, daily)
}

// readHourly loads one input series, timing the read stage.
func (p *Processor) readHourly(ctx context.Context, variableID string, year int) (*grid.Field, error) {
	start := time.Now()
	f, err := p.reader.ReadHourly(ctx, variableID, year)
	if err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", variableID, year, err)
	}
	p.metrics.StageDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("read %s/%d: %w", variableID, year, err)
	}
	return f, nil
}

func (p *Processor) deriveHumidity(ctx context.Context, u Unit) (*grid.Field, error) {
	tas, err := p.readHourly(ctx, "tas", u.Year)
	if err != nil {
		return nil, err
	}
	dewptas, err := p.readHourly(ctx, "dewptas", u.Year)
	if err != nil {
		return nil, err
	}
	ps, err := p.readHourly(ctx, "ps", u.Year)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	huss, hurs, err := derive.SpecificHumidity(tas, dewptas, ps)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", u, err)
	}
	p.metrics.StageDuration.WithLabelValues("derive").Observe(time.Since(start).Seconds())

	if u.Variable == "hurs" {
		return hurs, nil
	}
	return huss, nil
}

func (p *Processor) deriveWindSpeed(ctx context.Context, u Unit) (*grid.Field, error) {
	uas, err := p.readHourly(ctx, "uas", u.Year)
	if err != nil {
		return nil, err
	}
	vas, err := p.readHourly(ctx, "vas", u.Year)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sfcwind, err := derive.WindSpeed(uas, vas)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", u, err)
	}
	p.metrics.StageDuration.WithLabelValues("derive").Observe(time.Since(start).Seconds())
	return sfcwind, nil
}

// processRange builds tasrange from the daily, resampled tasmax and tasmin
// series. A missing or misaligned tasmin series is a recoverable
// PairingError.
func (p *Processor) processRange(ctx context.Context, u Unit) error {
	tasmaxHourly, err := p.readHourly(ctx, "tasmax", u.Year)
	if err != nil {
		return err
	}
	tasmax, err := p.toDailyCoarse(ctx, Unit{Variable: "tasmax", Year: u.Year}, tasmaxHourly)
	if err != nil {
		return err
	}

	tasminHourly, err := p.readHourly(ctx, "tasmin", u.Year)
	if err != nil {
		return &derive.PairingError{Have: "tasmax", Want: "tasmin", Detail: err.Error()}
	}
	tasmin, err := p.toDailyCoarse(ctx, Unit{Variable: "tasmin", Year: u.Year}, tasminHourly)
	if err != nil {
		return err
	}

	start := time.Now()
	tasrange, err := derive.Range(tasmax, tasmin)
	if err != nil {
		return fmt.Errorf("derive %s: %w", u, err)
	}
	p.metrics.StageDuration.WithLabelValues("derive").Observe(time.Since(start).Seconds())

	return p.write(ctx, u, tasrange)
}

// toDailyCoarse aggregates an hourly field to daily resolution, resamples
// it onto the target grid, and normalizes its metadata.
func (p *Processor) toDailyCoarse(ctx context.Context, u Unit, hourly *grid.Field) (*grid.Field, error) {
	start := time.Now()
	daily, dropped, err := aggregate.Daily(hourly)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", u, err)
	}
	for _, d := range dropped {
		p.logger.Warn("dropping incomplete day", "unit", u.String(), "error", d.Error())
		p.metrics.DaysDropped.Inc()
	}
	p.metrics.StageDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())

	src, err := grid.DefFromAxes(daily.Lats, daily.Lons)
	if err != nil {
		return nil, fmt.Errorf("regrid %s: %w", u, err)
	}
	start = time.Now()
	w, hit, err := p.cache.Weights(src, p.target)
	if err != nil {
		return nil, fmt.Errorf("regrid %s: %w", u, err)
	}
	if hit {
		p.metrics.WeightsCacheHits.Inc()
	} else {
		p.metrics.WeightsCacheMisses.Inc()
	}
	coarse, err := regrid.Apply(daily, w, p.target)
	if err != nil {
		return nil, fmt.Errorf("regrid %s: %w", u, err)
	}
	p.metrics.StageDuration.WithLabelValues("regrid").Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return coarse, nil
}

func (p *Processor) write(ctx context.Context, u Unit, daily *grid.Field) error {
	// Normalization runs last so outputs carry canonical metadata no
	// matter which derivation path produced the field. It is idempotent,
	// so fields normalized mid-pipeline are unaffected.
	normalized, err := meta.Normalize(daily)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", u, err)
	}

	start := time.Now()
	if err := p.writer.WriteDaily(ctx, normalized, u.Year); err != nil {
		return fmt.Errorf("write %s: %w", u, err)
	}
	p.metrics.StageDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())
	return nil
}

// Runner schedules units onto a worker pool and collects the batch report.
type Runner struct {
	proc    *Processor
	logger  *slog.Logger
	metrics *observability.Metrics
	workers int
	ready   atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// NewRunner creates a Runner with the given parallelism.
func NewRunner(proc *Processor, logger *slog.Logger, metrics *observability.Metrics, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		proc:    proc,
		logger:  logger,
		metrics: metrics,
		workers: workers,
	}
}

// CheckReadiness returns nil once the batch has completed at least one
// unit, or an error describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no unit has completed yet")
	}
	return nil
}

// Progress reports how many units have completed, failed fatally, and been
// skipped so far. Safe to call while the batch is running.
func (r *Runner) Progress() (completed, failed, skipped int) {
	return int(r.completed.Load()), int(r.failed.Load()), int(r.skipped.Load())
}

// Run processes all units and returns the batch report. Unit failures are
// isolated: every unit is attempted unless the context is cancelled.
func (r *Runner) Run(ctx context.Context, units []Unit) Report {
	r.logger.Info("batch started", "units", len(units), "workers", r.workers)
	r.metrics.BatchRunning.Set(1)
	defer r.metrics.BatchRunning.Set(0)

	unitCh := make(chan Unit)
	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range unitCh {
				err := r.runUnit(ctx, u)
				if err == nil {
					continue
				}
				mu.Lock()
				if errors.As(err, new(*derive.PairingError)) {
					report.Skipped = append(report.Skipped, UnitError{Unit: u, Err: err})
				} else {
					report.Failed = append(report.Failed, UnitError{Unit: u, Err: err})
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, u := range units {
		select {
		case <-ctx.Done():
			break feed
		case unitCh <- u:
		}
	}
	close(unitCh)
	wg.Wait()

	r.logger.Info("batch finished",
		"units", len(units),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
	)
	return report
}

func (r *Runner) runUnit(ctx context.Context, u Unit) error {
	start := time.Now()
	err := r.proc.ProcessUnit(ctx, u)
	switch {
	case err == nil:
		r.completed.Add(1)
		r.metrics.UnitsProcessed.Inc()
		r.metrics.UnitDuration.Observe(time.Since(start).Seconds())
		r.ready.Store(true)
		r.logger.Info("unit complete", "unit", u.String(), "duration", time.Since(start).Round(time.Millisecond))
	case errors.As(err, new(*derive.PairingError)):
		r.skipped.Add(1)
		r.metrics.UnitsSkipped.Inc()
		r.logger.Warn("unit skipped", "unit", u.String(), "error", err)
	default:
		r.failed.Add(1)
		r.metrics.UnitsFailed.Inc()
		r.logger.Error("unit failed", "unit", u.String(), "error", err)
	}
	return err
}
