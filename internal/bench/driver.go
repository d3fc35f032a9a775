package bench

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"detectbench/internal/entity"

	"github.com/sirupsen/logrus"
)

var (
	ErrCompletionTimeout = errors.New("timed out waiting for run completion")
	ErrNoImages          = errors.New("no images found")
)

const (
	DefaultTimeout         = 180 * time.Second
	defaultPollInterval    = 250 * time.Millisecond
	defaultLookupTimeout   = 2 * time.Second
	defaultArtifactTimeout = 60 * time.Second
)

type Options struct {
	Input    string
	Strategy entity.Strategy
	Server   string
	Output   string
	// Timeout bounds the wait for one image's total cell.
	Timeout         time.Duration
	PollInterval    time.Duration
	LookupTimeout   time.Duration
	ArtifactTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = defaultLookupTimeout
	}
	if o.ArtifactTimeout <= 0 {
		o.ArtifactTimeout = defaultArtifactTimeout
	}
}

// OutputDir is where the report and artifacts of this batch are written.
func (o Options) OutputDir() string {
	return filepath.Join(o.Output, o.Strategy.String())
}

type Driver struct {
	page      Page
	log       *logrus.Logger
	opts      Options
	collector *MetricsCollector
	fetcher   *ArtifactFetcher
	machine   *machine
}

func NewDriver(page Page, log *logrus.Logger, opts Options) *Driver {
	opts.setDefaults()
	return &Driver{
		page:      page,
		log:       log,
		opts:      opts,
		collector: NewMetricsCollector(opts.LookupTimeout),
		fetcher:   NewArtifactFetcher(opts.Server, opts.ArtifactTimeout, opts.LookupTimeout),
		machine:   newMachine(log),
	}
}

// Run benchmarks every image under the input directory and persists the
// report. On abort the rows recorded so far are still written, marked
// incomplete, and the cause is returned.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := NewReport(d.opts.Strategy)

	images, err := Discover(d.opts.Input)
	if err != nil {
		return report, fmt.Errorf("discover images: %w", err)
	}
	if len(images) == 0 {
		return report, fmt.Errorf("%w in %s", ErrNoImages, d.opts.Input)
	}

	d.log.WithFields(logrus.Fields{
		"images":   len(images),
		"strategy": d.opts.Strategy.String(),
		"server":   d.opts.Server,
	}).Info("Starting benchmark batch")

	navCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	err = d.page.Navigate(navCtx, d.opts.Server)
	cancel()
	if err != nil {
		return report, d.abort(report, fmt.Errorf("open %s: %w", d.opts.Server, err))
	}

	for _, image := range images {
		run, err := d.runImage(ctx, image)
		if err != nil {
			return report, d.abort(report, err)
		}
		report.Add(run)
	}

	path, err := report.Save(d.opts.OutputDir())
	if err != nil {
		return report, fmt.Errorf("save report: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"runs":   len(report.Runs),
		"report": path,
	}).Info("Benchmark batch finished")

	return report, nil
}

func (d *Driver) abort(report *Report, cause error) error {
	report.Abort(cause)

	path, err := report.Save(d.opts.OutputDir())
	if err != nil {
		d.log.WithError(err).Error("Failed to save partial report")
	}

	d.log.WithFields(logrus.Fields{
		"runs":   len(report.Runs),
		"report": path,
		"cause":  cause.Error(),
	}).Error("Benchmark batch aborted")

	return cause
}

func (d *Driver) runImage(ctx context.Context, image string) (Run, error) {
	m := d.machine
	if err := m.begin(image); err != nil {
		return Run{}, err
	}

	strategy := d.opts.Strategy

	if err := d.page.SetInputFile(ctx, FileInputSelector, image); err != nil {
		return Run{}, fmt.Errorf("select %s: %w", image, err)
	}
	if err := m.advance(StateFileSelected); err != nil {
		return Run{}, err
	}

	if err := d.page.SelectOption(ctx, StrategySelectSelector, strategy.String()); err != nil {
		return Run{}, fmt.Errorf("choose strategy: %w", err)
	}
	if err := m.advance(StateStrategyChosen); err != nil {
		return Run{}, err
	}

	if err := d.page.Click(ctx, StartButtonSelector); err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	if err := m.advance(StateRunStarted); err != nil {
		return Run{}, err
	}

	if err := m.advance(StateAwaitingCompletion); err != nil {
		return Run{}, err
	}
	if err := d.awaitCompletion(ctx, strategy); err != nil {
		return Run{}, fmt.Errorf("%s: %w", filepath.Base(image), err)
	}

	run := Run{
		Filename: filepath.Base(image),
		Strategy: strategy,
		Metrics:  d.collector.Collect(ctx, d.page, strategy),
	}
	if err := m.advance(StateMetricsScraped); err != nil {
		return Run{}, err
	}

	name := ArtifactName(image)
	if err := d.saveArtifact(ctx, strategy, filepath.Join(d.opts.OutputDir(), name)); err != nil {
		d.log.WithFields(logrus.Fields{
			"image": image,
			"error": err.Error(),
		}).Warn("Failed to save result artifact")
	} else {
		run.Artifact = name
	}
	if err := m.advance(StateArtifactSaved); err != nil {
		return Run{}, err
	}

	if err := m.advance(StateRecorded); err != nil {
		return Run{}, err
	}
	return run, nil
}

// awaitCompletion polls the total cell until it holds a real value.
func (d *Driver) awaitCompletion(ctx context.Context, strategy entity.Strategy) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	selector := "#" + MetricID(FieldTotal, strategy)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		if done(d.readTotal(waitCtx, selector)) {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %s", ErrCompletionTimeout, d.opts.Timeout)
		case <-ticker.C:
		}
	}
}

func (d *Driver) readTotal(ctx context.Context, selector string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, d.opts.LookupTimeout)
	defer cancel()

	t, err := d.page.Text(lookupCtx, selector)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}

func done(total string) bool {
	return total != "" && total != "—" && total != "#"
}

func (d *Driver) saveArtifact(ctx context.Context, strategy entity.Strategy, dst string) error {
	ref, err := d.fetcher.Locate(ctx, d.page, strategy)
	if err != nil {
		return err
	}
	return d.fetcher.Save(ctx, ref, dst)
}

func (d *Driver) OutputDir() string {
	return d.opts.OutputDir()
}
