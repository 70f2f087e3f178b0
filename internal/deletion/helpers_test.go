package deletion

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"promosuite.app/internal/backend"
	"promosuite.app/internal/backend/memory"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func specs(pairs ...string) []ResourceSpec {
	out := make([]ResourceSpec, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, ResourceSpec{Collection: pairs[i], OwnerKey: pairs[i+1]})
	}
	return out
}

// slowBackend blocks DeleteWhere on one collection until the call context ends.
type slowBackend struct {
	*memory.InMemory
	slow string
}

func (s slowBackend) DeleteWhere(ctx context.Context, collection, ownerKey, targetID string) (int64, error) {
	if collection == s.slow {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.InMemory.DeleteWhere(ctx, collection, ownerKey, targetID)
}

var _ backend.Backend = slowBackend{}

func newService(t *testing.T, b backend.Backend, resources []ResourceSpec) (*Service, *observer.ObservedLogs) {
	t.Helper()
	log, logs := observedLogger()
	svc := NewService(b, Options{
		Resources:         resources,
		CallTimeout:       time.Second,
		PrivilegedRoutine: "delete_oauth_user_complete",
		Logger:            log,
	})
	return svc, logs
}
