package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// InFlightGuard is the best-effort distributed complement to the
// controller's local single-flight guard: two admin sessions settling the
// same payee/period race their prepare calls without it. Redis being down
// degrades to the local guard only; correctness still rests on the
// backend's stale-target rejection.
type InFlightGuard struct {
	getLocker func() *redislock.Client
	logger    *logrus.Logger
	ttl       time.Duration
}

// NewInFlightGuard takes a locker provider because Redis connects in the
// background after the server is listening.
func NewInFlightGuard(getLocker func() *redislock.Client, logger *logrus.Logger) *InFlightGuard {
	return &InFlightGuard{getLocker: getLocker, logger: logger, ttl: 2 * time.Minute}
}

func guardKey(kind models.PayeeKind, payeeId int, periodKind models.PeriodKind) string {
	return fmt.Sprintf("settle:%s:%d:%s", kind, payeeId, periodKind)
}

// Acquire returns a release func and whether the caller may proceed.
// ok=false only when another session verifiably holds the lock.
func (g *InFlightGuard) Acquire(ctx context.Context, kind models.PayeeKind, payeeId int, periodKind models.PeriodKind) (func(), bool) {
	noop := func() {}
	if g == nil {
		return noop, true
	}
	locker := g.getLocker()
	if locker == nil {
		return noop, true
	}

	key := guardKey(kind, payeeId, periodKind)
	lock, err := locker.Obtain(ctx, key, g.ttl, nil)
	if err == redislock.ErrNotObtained {
		g.logger.WithFields(logrus.Fields{
			"key":        key,
			"payee_kind": kind,
			"payee_id":   payeeId,
		}).Warn("settlement lock held by another session")
		return noop, false
	}
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"key":        key,
			"payee_kind": kind,
			"payee_id":   payeeId,
		}).Warn("could not reach redis for settlement lock; proceeding with local guard only: " + err.Error())
		return noop, true
	}

	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && releaseErr != redislock.ErrLockNotHeld {
			g.logger.WithFields(logrus.Fields{"key": key}).
				Warn("failed to release settlement lock: " + releaseErr.Error())
		}
	}, true
}
