package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"

	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/metrics"
	"github.com/StrathCole/price-engine/pkg/price"
)

// Storer stores one observation for every asset that keeps a moving average.
type Storer interface {
	StoreObservations(ctx context.Context, caller common.Address) error
}

// Config contains keeper configuration
type Config struct {
	Caller        common.Address
	Interval      time.Duration
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Keeper runs StoreObservations on a fixed schedule.
type Keeper struct {
	engine Storer
	cfg    Config
	logger *logging.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a keeper. A MaxRetries below one means a single attempt per run.
func New(engine Storer, cfg Config, logger *logging.Logger) (*Keeper, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if cfg.Interval < time.Second {
		return nil, fmt.Errorf("%w: %s", ErrIntervalInvalid, cfg.Interval)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Keeper{
		engine: engine,
		cfg:    cfg,
		logger: logger.With("component", "keeper"),
	}, nil
}

// Start schedules the keeper. Runs never overlap; a run still in progress when the
// next tick fires causes that tick to be skipped.
func (k *Keeper) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{k.logger})))
	schedule := fmt.Sprintf("@every %s", k.cfg.Interval)
	if _, err := c.AddFunc(schedule, k.tick); err != nil {
		return fmt.Errorf("failed to schedule keeper: %w", err)
	}
	c.Start()
	k.cron = c

	k.logger.Info("Keeper started",
		"caller", k.cfg.Caller.Hex(),
		"interval", k.cfg.Interval.String(),
	)
	return nil
}

// Stop unschedules the keeper and waits for a running job until ctx is done.
func (k *Keeper) Stop(ctx context.Context) {
	k.mu.Lock()
	c := k.cron
	k.cron = nil
	k.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	k.logger.Info("Keeper stopped")
}

func (k *Keeper) tick() {
	ctx := context.Background()
	if k.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.cfg.Timeout)
		defer cancel()
	}
	_ = k.Run(ctx)
}

// Run performs a single store with retries.
func (k *Keeper) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < k.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			k.logger.Info("Retrying observation store", "attempt", attempt+1)
			select {
			case <-ctx.Done():
				metrics.RecordKeeperRun("cancelled")
				return ctx.Err()
			case <-time.After(k.cfg.RetryInterval):
			}
		}

		err := k.engine.StoreObservations(ctx, k.cfg.Caller)
		if err == nil {
			metrics.RecordKeeperRun("success")
			k.logger.Debug("Observations stored")
			return nil
		}
		lastErr = err
		k.logger.Warn("Observation store failed", "attempt", attempt+1, "error", err)

		if errors.Is(err, price.ErrNotPermitted) {
			break
		}
	}

	metrics.RecordKeeperRun("failure")
	return fmt.Errorf("%w: %w", ErrStoreFailed, lastErr)
}

// cronLogger adapts the engine logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
