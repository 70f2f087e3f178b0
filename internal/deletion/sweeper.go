package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"promosuite.app/internal/backend"
	"promosuite.app/internal/obs"
)

// Sweeper deletes user-owned records collection by collection. It never stops early and
// never rolls back.
type Sweeper struct {
	backend backend.Backend
	specs   []ResourceSpec
	timeout time.Duration
	log     *zap.Logger
}

func NewSweeper(b backend.Backend, specs []ResourceSpec, timeout time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = obs.Logger()
	}
	cp := make([]ResourceSpec, len(specs))
	copy(cp, specs)
	return &Sweeper{backend: b, specs: cp, timeout: timeout, log: log}
}

// Sweep returns one outcome per configured spec, in configuration order.
func (s *Sweeper) Sweep(ctx context.Context, targetID string) []ResourceOutcome {
	out := make([]ResourceOutcome, 0, len(s.specs))
	for _, spec := range s.specs {
		o := s.sweepOne(ctx, spec, targetID)
		logOutcome(s.log, o)
		out = append(out, o)
	}
	return out
}

func (s *Sweeper) sweepOne(ctx context.Context, spec ResourceSpec, targetID string) (out ResourceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = ResourceOutcome{
				Collection: spec.Collection,
				Status:     StatusException,
				Error:      fmt.Sprint(r),
			}
		}
	}()

	out.Collection = spec.Collection
	n, err := s.probe(ctx, spec, targetID)
	switch {
	case errors.Is(err, backend.ErrSchemaNotFound):
		out.Status = StatusNotFound
		return out
	case err != nil:
		out.Status = StatusAccessError
		out.Error = err.Error()
		return out
	case n == 0:
		out.Status = StatusNoData
		return out
	}

	deleted, err := s.delete(ctx, spec, targetID)
	switch {
	case err == nil:
		out.Status = StatusSuccess
		out.RecordCount = count(deleted)
	case errors.Is(err, context.DeadlineExceeded):
		out.Status = StatusException
		out.Error = err.Error()
	default:
		out.Status = StatusFailed
		out.Error = err.Error()
	}
	return out
}

func (s *Sweeper) probe(ctx context.Context, spec ResourceSpec, targetID string) (int, error) {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.Probe(callCtx, spec.Collection, spec.OwnerKey, targetID, 1)
}

func (s *Sweeper) delete(ctx context.Context, spec ResourceSpec, targetID string) (int64, error) {
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.DeleteWhere(callCtx, spec.Collection, spec.OwnerKey, targetID)
}

func logOutcome(log *zap.Logger, o ResourceOutcome) {
	obs.ObserveResourceOutcome(string(o.Status))

	fields := []zap.Field{
		zap.String("collection", o.Collection),
		zap.String("status", string(o.Status)),
	}
	if o.RecordCount != nil {
		fields = append(fields, zap.Int64("record_count", *o.RecordCount))
	}
	if o.Method != "" {
		fields = append(fields, zap.String("method", o.Method))
	}
	switch o.Status {
	case StatusSuccess, StatusNoData, StatusNotFound:
		log.Info("deletion.resource", fields...)
	default:
		log.Warn("deletion.resource", append(fields, zap.String("error", o.Error))...)
	}
}
