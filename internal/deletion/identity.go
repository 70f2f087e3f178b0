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

var errRoutineKeptIdentity = errors.New("privileged routine did not delete the auth identity")

type identityStrategy struct {
	name Strategy
	// federatedOnly strategies are skipped for email/password identities.
	federatedOnly bool
	run           func(ctx context.Context, id backend.Identity) ([]string, error)
}

// IdentityRemover tries each removal strategy in order until one succeeds.
type IdentityRemover struct {
	backend    backend.Backend
	timeout    time.Duration
	log        *zap.Logger
	strategies []identityStrategy
}

// NewIdentityRemover builds the chain standard, forced, then the privileged routine
// named routine. An empty routine name drops the last step.
func NewIdentityRemover(b backend.Backend, routine string, timeout time.Duration, log *zap.Logger) *IdentityRemover {
	if log == nil {
		log = obs.Logger()
	}
	r := &IdentityRemover{backend: b, timeout: timeout, log: log}
	r.strategies = []identityStrategy{
		{name: StrategyStandard, run: r.deleteIdentity(false)},
		{name: StrategyForced, federatedOnly: true, run: r.deleteIdentity(true)},
	}
	if routine != "" {
		r.strategies = append(r.strategies, identityStrategy{
			name:          StrategyPrivileged,
			federatedOnly: true,
			run:           r.callRoutine(routine),
		})
	}
	return r
}

// Remove returns the identity outcome and, when the privileged routine ran, the
// collections it reports as cleared.
func (r *IdentityRemover) Remove(ctx context.Context, id backend.Identity) (IdentityOutcome, []ResourceOutcome) {
	var firstErr error
	for _, st := range r.strategies {
		if st.federatedOnly && !id.Federated() {
			break
		}
		tables, err := r.attempt(ctx, st, id)
		if err == nil {
			out := IdentityOutcome{Deleted: true, Strategy: st.name}
			r.logDecision(out, id)
			return out, routineOutcomes(tables)
		}
		r.log.Debug("deletion.identity.attempt",
			zap.String("strategy", string(st.name)),
			zap.Error(err),
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	out := IdentityOutcome{
		Deleted: false,
		Diagnostics: &Diagnostics{
			UserID:    id.ID,
			Provider:  id.Provider,
			Email:     id.Email,
			CreatedAt: id.CreatedAt,
		},
	}
	if firstErr != nil {
		out.Error = firstErr.Error()
	}
	r.logDecision(out, id)
	return out, nil
}

func (r *IdentityRemover) attempt(ctx context.Context, st identityStrategy, id backend.Identity) (tables []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tables, err = nil, fmt.Errorf("%s: panic: %v", st.name, rec)
		}
	}()
	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return st.run(callCtx, id)
}

func (r *IdentityRemover) deleteIdentity(force bool) func(context.Context, backend.Identity) ([]string, error) {
	return func(ctx context.Context, id backend.Identity) ([]string, error) {
		return nil, r.backend.DeleteIdentity(ctx, id.ID, force)
	}
}

func (r *IdentityRemover) callRoutine(name string) func(context.Context, backend.Identity) ([]string, error) {
	return func(ctx context.Context, id backend.Identity) ([]string, error) {
		res, err := r.backend.CallPrivilegedRoutine(ctx, name, id.ID)
		if err != nil {
			return nil, err
		}
		if !res.AuthDeleted {
			return nil, errRoutineKeptIdentity
		}
		return res.TablesDeleted, nil
	}
}

func (r *IdentityRemover) logDecision(out IdentityOutcome, id backend.Identity) {
	obs.ObserveIdentityOutcome(string(out.Strategy), out.Deleted)
	if out.Deleted {
		r.log.Info("deletion.identity",
			zap.Bool("deleted", true),
			zap.String("strategy", string(out.Strategy)),
			zap.String("provider", id.Provider),
		)
		return
	}
	r.log.Error("deletion.identity",
		zap.Bool("deleted", false),
		zap.String("error", out.Error),
		zap.String("user_id", id.ID),
		zap.String("provider", id.Provider),
		zap.String("email", id.Email),
		zap.Time("created_at", id.CreatedAt),
	)
}

func routineOutcomes(tables []string) []ResourceOutcome {
	if len(tables) == 0 {
		return nil
	}
	out := make([]ResourceOutcome, 0, len(tables))
	for _, t := range tables {
		out = append(out, ResourceOutcome{
			Collection: t,
			Status:     StatusSuccess,
			Method:     string(StrategyPrivileged),
		})
	}
	return out
}

// mergeOutcomes folds routine-reported collections into the sweep results. A collection
// already swept successfully is left alone; any other swept entry is replaced in place;
// unknown collections are appended. The returned slice holds each collection once.
func mergeOutcomes(swept, extra []ResourceOutcome) (merged, added []ResourceOutcome) {
	merged = make([]ResourceOutcome, len(swept), len(swept)+len(extra))
	copy(merged, swept)
	index := make(map[string]int, len(merged))
	for i, o := range merged {
		index[o.Collection] = i
	}
	for _, o := range extra {
		i, ok := index[o.Collection]
		switch {
		case ok && merged[i].Status == StatusSuccess:
			continue
		case ok:
			merged[i] = o
		default:
			index[o.Collection] = len(merged)
			merged = append(merged, o)
		}
		added = append(added, o)
	}
	return merged, added
}
