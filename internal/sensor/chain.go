package sensor

import (
	"context"
	"time"
)

// ChainConfig selects which decorators to wrap around a source. A zero
// QueueLen disables the similarity filter, a zero ShortInterval disables the
// averaging task.
type ChainConfig struct {
	// Similarity filter.
	QueueLen int
	Delta    float64

	// Averaging task.
	ShortInterval time.Duration
	AveragingTime time.Duration
	SkipVal       float64
}

// NewChain composes the decorators around src in the only correct order:
// the similarity filter directly on the source, the averaging task
// outermost. If construction fails partway, whatever was already built is
// closed so no hardware handle or background task leaks.
func NewChain(ctx context.Context, src Thermometer, cfg ChainConfig) (Thermometer, error) {
	stage := src

	if cfg.QueueLen > 0 {
		f, err := NewSimilarityFilter(ctx, stage, cfg.QueueLen, cfg.Delta)
		if err != nil {
			stage.Close()
			return nil, err
		}
		stage = f
	}

	if cfg.ShortInterval > 0 {
		a, err := NewAverager(ctx, stage, cfg.ShortInterval, cfg.AveragingTime, cfg.SkipVal)
		if err != nil {
			stage.Close()
			return nil, err
		}
		stage = a
	}

	return stage, nil
}
