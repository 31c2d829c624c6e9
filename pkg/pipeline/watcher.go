package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/threeoaks/csvpipe/pkg/match"
	"github.com/threeoaks/csvpipe/pkg/storage"
)

// WatcherConfig configures an uploads watcher.
type WatcherConfig struct {
	// Bucket is the bucket to watch.
	Bucket string

	// UploadsPrefix scopes listing to the uploads namespace.
	// Defaults to "uploads/".
	UploadsPrefix string

	// PollInterval is the delay between poll cycles in Run.
	// Defaults to 5s.
	PollInterval time.Duration

	// ListRate caps List calls per second across poll cycles; zero
	// disables the limiter.
	ListRate float64
}

// Watcher is the upload-event substitute for environments without bucket
// notifications: it polls the uploads prefix and dispatches the validator
// for every new object it sees.
//
// Seen keys are tracked per process only and pruned to the live listing
// after every complete cycle, so the map stays bounded. A restart, or a
// key removed and re-uploaded, re-dispatches the file, which is safe:
// re-validating recreates and re-runs the same job (the documented
// overwrite semantics).
type Watcher struct {
	objects   storage.Store
	validator *Validator
	matcher   *match.Matcher
	cfg       WatcherConfig
	limiter   *rate.Limiter
	logger    *zap.Logger
	seen      map[string]struct{}
}

// NewWatcher wires a watcher. matcher may be nil to dispatch every key
// under the prefix.
func NewWatcher(objects storage.Store, validator *Validator, matcher *match.Matcher, cfg WatcherConfig, logger *zap.Logger) (*Watcher, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("watch bucket is required")
	}
	if cfg.UploadsPrefix == "" {
		cfg.UploadsPrefix = "uploads/"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.ListRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ListRate), 1)
	}

	return &Watcher{
		objects:   objects,
		validator: validator,
		matcher:   matcher,
		cfg:       cfg,
		limiter:   limiter,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}, nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("Poll cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single poll cycle and returns the number of uploads
// dispatched to the validator.
func (w *Watcher) RunOnce(ctx context.Context) (int, error) {
	dispatched := 0
	token := ""
	listed := make(map[string]struct{})
	for {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return dispatched, err
			}
		}

		page, err := w.objects.List(ctx, w.cfg.Bucket, storage.ListOptions{
			Prefix:            w.cfg.UploadsPrefix,
			ContinuationToken: token,
		})
		if err != nil {
			return dispatched, fmt.Errorf("list uploads: %w", err)
		}

		for _, obj := range page.Objects {
			listed[obj.Key] = struct{}{}
			if _, ok := w.seen[obj.Key]; ok {
				continue
			}
			if !w.wants(obj.Key) {
				w.seen[obj.Key] = struct{}{}
				continue
			}

			if err := w.validator.HandleUpload(ctx, w.cfg.Bucket, obj.Key); err != nil {
				// Leave the key unseen so the next cycle retries it.
				w.logger.Error("Dispatch failed", zap.String("key", obj.Key), zap.Error(err))
				continue
			}
			w.seen[obj.Key] = struct{}{}
			dispatched++
		}

		if !page.IsTruncated || page.ContinuationToken == "" {
			w.prune(listed)
			return dispatched, nil
		}
		token = page.ContinuationToken
	}
}

// prune drops seen entries for keys no longer under the prefix, keeping
// the map bounded by the live listing. Only called after a complete
// cycle: a partial listing must not evict keys it never reached.
func (w *Watcher) prune(listed map[string]struct{}) {
	for key := range w.seen {
		if _, ok := listed[key]; !ok {
			delete(w.seen, key)
		}
	}
}

// wants applies the matcher to the key relative to the uploads prefix.
func (w *Watcher) wants(key string) bool {
	if w.matcher == nil {
		return true
	}
	rel := strings.TrimPrefix(key, w.cfg.UploadsPrefix)
	return w.matcher.Match(rel)
}
