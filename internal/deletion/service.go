package deletion

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"promosuite.app/internal/backend"
	"promosuite.app/internal/lock"
	"promosuite.app/internal/obs"
)

const lockPrefix = "account-delete:"

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Resources         []ResourceSpec
	CallTimeout       time.Duration
	PrivilegedRoutine string
	Locker            lock.Locker
	LockTTL           time.Duration
	Logger            *zap.Logger
}

// Service runs the deletion workflow: verify, sweep, remove identity, report.
type Service struct {
	verifier *Verifier
	sweeper  *Sweeper
	remover  *IdentityRemover
	locker   lock.Locker
	lockTTL  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewService(b backend.Backend, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = obs.Logger()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	return &Service{
		verifier: NewVerifier(b, opts.CallTimeout),
		sweeper:  NewSweeper(b, opts.Resources, opts.CallTimeout, opts.Logger),
		remover:  NewIdentityRemover(b, opts.PrivilegedRoutine, opts.CallTimeout, opts.Logger),
		locker:   opts.Locker,
		lockTTL:  opts.LockTTL,
		log:      opts.Logger,
		now:      time.Now,
	}
}

// DeleteAccount hard-deletes the account named by req. Errors are returned only when
// nothing was deleted: *AuthError, ErrInvalidRequest, ErrInProgress or a backend failure
// during verification. Once the sweep starts the caller always gets a report.
func (s *Service) DeleteAccount(ctx context.Context, req Request) (Report, error) {
	if strings.TrimSpace(req.TargetUserID) == "" {
		return Report{}, ErrInvalidRequest
	}
	identity, err := s.verifier.Verify(ctx, req.BearerCredential, req.TargetUserID)
	if err != nil {
		return Report{}, err
	}

	release, err := s.locker.Acquire(ctx, lockPrefix+identity.ID, s.lockTTL)
	switch {
	case errors.Is(err, lock.ErrLocked):
		return Report{}, ErrInProgress
	case err != nil:
		// Fail open: a lock store outage must not block account deletion.
		s.log.Warn("deletion lock unavailable", zap.String("user_id", identity.ID), zap.Error(err))
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("deletion lock release failed", zap.String("user_id", identity.ID), zap.Error(err))
			}
		}()
	}

	// The sweep is not cancellable by the caller; each call has its own timeout.
	runCtx := context.WithoutCancel(ctx)
	start := s.now()

	outcomes := s.sweeper.Sweep(runCtx, identity.ID)
	idOutcome, extra := s.remover.Remove(runCtx, identity)
	outcomes, added := mergeOutcomes(outcomes, extra)
	for _, o := range added {
		logOutcome(s.log, o)
	}

	report := BuildReport(outcomes, idOutcome)
	elapsed := s.now().Sub(start)
	obs.ObserveDeletionDuration(elapsed)
	s.log.Info("deletion.completed",
		zap.String("user_id", identity.ID),
		zap.Int("success_count", report.Summary.SuccessCount),
		zap.Int("total_count", report.Summary.TotalCount),
		zap.Bool("auth_deleted", idOutcome.Deleted),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}
