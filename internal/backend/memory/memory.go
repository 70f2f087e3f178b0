// Package memory is an in-process backend used by tests and local development.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promosuite.app/internal/auth"
	"promosuite.app/internal/backend"
)

// Record is one row keyed by column name.
type Record map[string]string

// RoutineFunc implements a privileged routine against the in-memory state.
type RoutineFunc func(b *InMemory, targetID string) (backend.RoutineResult, error)

// Calls counts backend invocations.
type Calls struct {
	VerifyToken     int
	Probes          int
	Deletes         int
	IdentityDeletes int
	Routines        int
}

// InMemory implements backend.Backend with mutex-guarded maps.
type InMemory struct {
	mu          sync.Mutex
	tokens      map[string]string
	identities  map[string]backend.Identity
	removed     map[string]bool
	collections map[string][]Record
	probeErrs   map[string]error
	deleteErrs  map[string]error
	panics      map[string]bool
	identityErr map[bool]error
	routines    map[string]RoutineFunc
	verifier    *auth.TokenVerifier
	calls       Calls
}

var _ backend.Backend = (*InMemory)(nil)

// Option configures InMemory.
type Option func(*InMemory)

// WithTokenVerifier makes VerifyToken accept signed JWTs, registering the identity on
// first sight. Static credentials added with AddIdentity keep working.
func WithTokenVerifier(v *auth.TokenVerifier) Option {
	return func(b *InMemory) { b.verifier = v }
}

// New creates an empty backend.
func New(opts ...Option) *InMemory {
	b := &InMemory{
		tokens:      make(map[string]string),
		identities:  make(map[string]backend.Identity),
		removed:     make(map[string]bool),
		collections: make(map[string][]Record),
		probeErrs:   make(map[string]error),
		deleteErrs:  make(map[string]error),
		panics:      make(map[string]bool),
		identityErr: make(map[bool]error),
		routines:    make(map[string]RoutineFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewIdentity registers an identity with a random UUID and returns it with its credential.
func (b *InMemory) NewIdentity(email, provider string) (backend.Identity, string) {
	id := backend.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
	credential := "tok-" + uuid.NewString()
	b.AddIdentity(id, credential)
	return id, credential
}

// AddIdentity registers identity and binds credential to it. Empty credential registers
// the identity without any way to authenticate as it.
func (b *InMemory) AddIdentity(id backend.Identity, credential string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identities[id.ID] = id
	if credential != "" {
		b.tokens[credential] = id.ID
	}
}

// BindToken binds credential to an id that may not exist as an identity.
func (b *InMemory) BindToken(credential, identityID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[credential] = identityID
}

// HasIdentity reports whether the identity still exists.
func (b *InMemory) HasIdentity(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.identities[id]
	return ok
}

// CreateCollection makes an empty collection exist.
func (b *InMemory) CreateCollection(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		if _, ok := b.collections[name]; !ok {
			b.collections[name] = nil
		}
	}
}

// Insert appends records, creating the collection when needed.
func (b *InMemory) Insert(collection string, records ...Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range records {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		b.collections[collection] = append(b.collections[collection], cp)
	}
	if _, ok := b.collections[collection]; !ok {
		b.collections[collection] = nil
	}
}

// Count returns the number of records with key == value in collection.
func (b *InMemory) Count(collection, key, value string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return countLocked(b.collections[collection], key, value)
}

// FailProbe makes probes against collection return err.
func (b *InMemory) FailProbe(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeErrs[collection] = err
}

// FailDelete makes deletes against collection return err.
func (b *InMemory) FailDelete(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteErrs[collection] = err
}

// PanicOnDelete makes deletes against collection panic.
func (b *InMemory) PanicOnDelete(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panics[collection] = true
}

// FailIdentityDelete makes DeleteIdentity with the given force flag return err.
func (b *InMemory) FailIdentityDelete(force bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identityErr[force] = err
}

// RegisterRoutine installs a privileged routine under name.
func (b *InMemory) RegisterRoutine(name string, fn RoutineFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routines[name] = fn
}

// Calls returns a snapshot of invocation counters.
func (b *InMemory) Calls() Calls {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *InMemory) VerifyToken(ctx context.Context, credential string) (backend.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls.VerifyToken++

	if id, ok := b.tokens[credential]; ok {
		identity, found := b.identities[id]
		if !found {
			return backend.Identity{}, backend.ErrIdentityNotFound
		}
		return identity, nil
	}
	if b.verifier == nil {
		return backend.Identity{}, backend.ErrInvalidToken
	}
	claims, err := b.verifier.Parse(credential)
	if err != nil {
		return backend.Identity{}, errors.Join(backend.ErrInvalidToken, err)
	}
	if b.removed[claims.Subject] {
		return backend.Identity{}, backend.ErrIdentityNotFound
	}
	identity, ok := b.identities[claims.Subject]
	if !ok {
		identity = backend.Identity{
			ID:        claims.Subject,
			Email:     claims.Email,
			Provider:  claims.Provider(),
			CreatedAt: time.Now().UTC(),
		}
		b.identities[identity.ID] = identity
	}
	return identity, nil
}

func (b *InMemory) Probe(ctx context.Context, collection, ownerKey, targetID string, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls.Probes++

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := b.probeErrs[collection]; err != nil {
		return 0, err
	}
	records, ok := b.collections[collection]
	if !ok {
		return 0, backend.ErrSchemaNotFound
	}
	n := countLocked(records, ownerKey, targetID)
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (b *InMemory) DeleteWhere(ctx context.Context, collection, ownerKey, targetID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls.Deletes++

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if b.panics[collection] {
		panic("memory backend: delete from " + collection)
	}
	if err := b.deleteErrs[collection]; err != nil {
		return 0, err
	}
	records, ok := b.collections[collection]
	if !ok {
		return 0, backend.ErrSchemaNotFound
	}
	return b.deleteLocked(collection, records, ownerKey, targetID), nil
}

func (b *InMemory) DeleteIdentity(ctx context.Context, targetID string, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls.IdentityDeletes++

	if err := b.identityErr[force]; err != nil {
		return err
	}
	if _, ok := b.identities[targetID]; !ok {
		return backend.ErrIdentityNotFound
	}
	b.dropIdentityLocked(targetID)
	return nil
}

func (b *InMemory) CallPrivilegedRoutine(ctx context.Context, name, targetID string) (backend.RoutineResult, error) {
	b.mu.Lock()
	b.calls.Routines++
	fn, ok := b.routines[name]
	b.mu.Unlock()

	if !ok {
		return backend.RoutineResult{}, backend.ErrRoutineUnavailable
	}
	return fn(b, targetID)
}

// Ping always succeeds.
func (b *InMemory) Ping(ctx context.Context) error { return nil }

// OAuthTeardown is a RoutineFunc that deletes every record owned through user_id and then
// the identity, mirroring the SQL routine shipped in the migrations.
func OAuthTeardown(b *InMemory, targetID string) (backend.RoutineResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var tables []string
	for name, records := range b.collections {
		if b.deleteLocked(name, records, "user_id", targetID) > 0 {
			tables = append(tables, name)
		}
	}
	_, existed := b.identities[targetID]
	b.dropIdentityLocked(targetID)
	return backend.RoutineResult{AuthDeleted: existed, TablesDeleted: tables}, nil
}

func (b *InMemory) deleteLocked(collection string, records []Record, key, value string) int64 {
	kept := records[:0]
	var removed int64
	for _, r := range records {
		if r[key] == value {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	b.collections[collection] = kept
	return removed
}

func (b *InMemory) dropIdentityLocked(id string) {
	delete(b.identities, id)
	b.removed[id] = true
	for tok, owner := range b.tokens {
		if owner == id {
			delete(b.tokens, tok)
		}
	}
}

func countLocked(records []Record, key, value string) int {
	n := 0
	for _, r := range records {
		if strings.TrimSpace(r[key]) != "" && r[key] == value {
			n++
		}
	}
	return n
}
