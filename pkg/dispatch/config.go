package dispatch

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Config holds dispatcher and worker settings loaded from the environment.
type Config struct {
	MaxRetryAttempts int           `env:"DISPATCH_MAX_RETRY_ATTEMPTS" envDefault:"3"`
	BackoffBase      time.Duration `env:"DISPATCH_BACKOFF_BASE" envDefault:"1s"`
	BackoffCap       time.Duration `env:"DISPATCH_BACKOFF_CAP" envDefault:"30s"`
	SendTimeout      time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"10s"`
	WorkerPoolSize   int           `env:"DISPATCH_WORKER_POOL_SIZE" envDefault:"10"`
	PollInterval     time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"1s"`
	BatchSize        int           `env:"DISPATCH_BATCH_SIZE" envDefault:"100"`
}

// NewDispatcherFromConfig creates a Dispatcher from the provided Config.
// Only positive values are applied; additional options run after the config.
func NewDispatcherFromConfig(store notification.Store, senders *Registry, cfg Config, opts ...DispatcherOption) (*Dispatcher, error) {
	configOpts := make([]DispatcherOption, 0, 3+len(opts))
	if cfg.MaxRetryAttempts > 0 {
		configOpts = append(configOpts, WithMaxAttempts(cfg.MaxRetryAttempts))
	}
	if cfg.BackoffBase > 0 || cfg.BackoffCap > 0 {
		configOpts = append(configOpts, WithBackoff(ExponentialBackoff{
			InitialInterval: cfg.BackoffBase,
			MaxInterval:     cfg.BackoffCap,
			Multiplier:      2,
			JitterFactor:    0.1,
		}))
	}
	if cfg.SendTimeout > 0 {
		configOpts = append(configOpts, WithSendTimeout(cfg.SendTimeout))
	}
	configOpts = append(configOpts, opts...)
	return NewDispatcher(store, senders, configOpts...)
}

// NewWorkerFromConfig creates a Worker from the provided Config. Only
// positive values are applied; additional options run after the config.
func NewWorkerFromConfig(store notification.Store, dispatcher *Dispatcher, cfg Config, opts ...WorkerOption) (*Worker, error) {
	configOpts := make([]WorkerOption, 0, 3+len(opts))
	if cfg.WorkerPoolSize > 0 {
		configOpts = append(configOpts, WithConcurrency(cfg.WorkerPoolSize))
	}
	if cfg.PollInterval > 0 {
		configOpts = append(configOpts, WithPollInterval(cfg.PollInterval))
	}
	if cfg.BatchSize > 0 {
		configOpts = append(configOpts, WithBatchSize(cfg.BatchSize))
	}
	configOpts = append(configOpts, opts...)
	return NewWorker(store, dispatcher, configOpts...)
}
