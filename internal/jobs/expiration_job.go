package jobs

import (
	"context"
	"sync"
	"time"

	"dumpster-be/internal/logger"

	"go.uber.org/zap"
)

// Expirer reopens accepted quotes whose invoice was not paid before cutoff.
type Expirer interface {
	ExpireAbandonedAcceptances(ctx context.Context, cutoff time.Time) (int, error)
}

// ExpirationJob periodically releases abandoned quote acceptances.
type ExpirationJob struct {
	expirer  Expirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

const defaultInterval = 5 * time.Minute

func NewExpirationJob(expirer Expirer, ttl, interval time.Duration) *ExpirationJob {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &ExpirationJob{
		expirer:  expirer,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs the job in the background until ctx is done or Stop is called.
func (j *ExpirationJob) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.run(ctx)
	logger.L().Info("expiration job started",
		zap.Duration("ttl", j.ttl),
		zap.Duration("interval", j.interval),
	)
}

// Stop signals the job and waits for the current pass to finish.
func (j *ExpirationJob) Stop() {
	j.once.Do(func() { close(j.stopChan) })
	j.wg.Wait()
	logger.L().Info("expiration job stopped")
}

func (j *ExpirationJob) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce expires every acceptance older than the TTL.
func (j *ExpirationJob) RunOnce(ctx context.Context) int {
	log := logger.FromCtx(ctx).With(zap.String("job", "expiration"))
	cutoff := j.now().Add(-j.ttl)

	n, err := j.expirer.ExpireAbandonedAcceptances(ctx, cutoff)
	if err != nil {
		log.Error("error expiring accepted quotes", zap.Error(err), zap.Int("expired", n))
	}
	if n > 0 {
		log.Info("expired accepted quotes", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
