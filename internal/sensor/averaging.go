package sensor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Averager smooths a noisy thermometer by sampling the wrapped stage in the
// background at a fixed short interval and reporting a trimmed mean over a
// long window. RawValue never touches the hardware; it only reads the
// history the sampler maintains.
//
// When composed with a SimilarityFilter the averager must be the outer
// stage so it averages already-screened samples; NewChain enforces this.
type Averager struct {
	inner    Thermometer
	cal      Calibration
	interval time.Duration
	capacity int
	skipval  float64

	mu      sync.Mutex
	history []float64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewAverager wraps inner with a background sampling task reading every
// shortInterval and keeping averagingTime worth of samples. skipval is the
// total fraction of extreme samples excluded from the mean, half from each
// end. The history is seeded with one sample and the task starts
// immediately; Close cancels it, interrupting any in-progress wait.
func NewAverager(ctx context.Context, inner Thermometer, shortInterval, averagingTime time.Duration, skipval float64) (*Averager, error) {
	if shortInterval <= 0 {
		return nil, fmt.Errorf("sensor: averaging sample interval must be positive, got %v", shortInterval)
	}
	if averagingTime < shortInterval {
		return nil, fmt.Errorf("sensor: averaging window %v is shorter than the sample interval %v", averagingTime, shortInterval)
	}
	if skipval < 0 || skipval >= 1 {
		return nil, fmt.Errorf("sensor: skip fraction must be in [0;1), got %v", skipval)
	}

	seed, err := inner.RawValue(ctx)
	if err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	a := &Averager{
		inner:    inner,
		cal:      calibrationOf(inner),
		interval: shortInterval,
		capacity: int(averagingTime / shortInterval),
		skipval:  skipval,
		history:  []float64{seed},
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go a.sample(taskCtx)
	return a, nil
}

// sample is the background loop feeding the history. Failed reads (including
// similarity rejections from an inner filter) are logged and skipped; the
// history is never polluted by them.
func (a *Averager) sample(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("sensor: averaging task stopped")
			return
		case <-ticker.C:
			v, err := a.inner.RawValue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).Warn("sensor: averaging task sample failed")
				}
				continue
			}
			a.mu.Lock()
			a.history = append(a.history, v)
			if len(a.history) > a.capacity {
				a.history = a.history[1:]
			}
			a.mu.Unlock()
		}
	}
}

// Calibration returns the wrapped stage's calibration.
func (a *Averager) Calibration() Calibration { return a.cal }

// RawValue returns the trimmed mean of the sampled history: the lowest and
// highest skipval/2 fraction of the full window are excluded, falling back
// to the plain mean while the window is still filling or when trimming
// would leave no samples.
func (a *Averager) RawValue(context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == 0 {
		return 0, &Error{Msg: "no samples available yet"}
	}

	skip := int(math.Round(float64(a.capacity) * a.skipval / 2))
	if len(a.history) < a.capacity || 2*skip >= len(a.history) {
		return round2(mean(a.history)), nil
	}

	sorted := make([]float64, len(a.history))
	copy(sorted, a.history)
	sort.Float64s(sorted)
	return round2(mean(sorted[skip : len(sorted)-skip])), nil
}

// CalibratedValue returns the trimmed mean, calibrated and rounded to two
// decimals.
func (a *Averager) CalibratedValue(ctx context.Context) (float64, error) {
	raw, err := a.RawValue(ctx)
	if err != nil {
		return 0, err
	}
	return round2(a.cal.Apply(raw)), nil
}

// Close cancels the sampling task, waits for it to stop and forwards to the
// wrapped stage. Safe to call more than once.
func (a *Averager) Close() error {
	a.closeOnce.Do(func() {
		a.cancel()
		<-a.done
		a.closeErr = a.inner.Close()
	})
	return a.closeErr
}
