package facade

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"promosuite.app/internal/deletion"
)

type fakeDeleter struct {
	calls  int
	report deletion.Report
	err    error
	panics bool
}

func (f *fakeDeleter) DeleteAccount(ctx context.Context, userID, credential string) (deletion.Report, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.report, f.err
}

func newFacade(d Deleter, nav Navigator) *Facade {
	return New(d, nav, WithRedirectDelay(10*time.Millisecond), WithLogger(zap.NewNop()))
}

func TestVerifyDeletionEligibility(t *testing.T) {
	f := newFacade(&fakeDeleter{}, nil)
	for _, u := range []*User{nil, {}, {ID: "  "}} {
		got := f.VerifyDeletionEligibility(u)
		if got.Eligible || got.Reason != "No user logged in" {
			t.Fatalf("user %+v: %+v", u, got)
		}
	}
	got := f.VerifyDeletionEligibility(&User{ID: "u1", Email: "a@example.com"})
	if !got.Eligible || got.UserID != "u1" {
		t.Fatalf("expected eligible, got %+v", got)
	}
}

func TestDeleteUserAccountIneligibleSkipsRemote(t *testing.T) {
	d := &fakeDeleter{}
	var logouts int
	res := newFacade(d, nil).DeleteUserAccount(context.Background(), nil, func(context.Context) error {
		logouts++
		return nil
	})
	if res.Success || res.Error != "No user logged in" {
		t.Fatalf("unexpected result %+v", res)
	}
	if d.calls != 0 || logouts != 0 {
		t.Fatalf("no remote call or logout expected: calls=%d logouts=%d", d.calls, logouts)
	}
}

func TestDeleteUserAccountSuccessRedirects(t *testing.T) {
	d := &fakeDeleter{report: deletion.Report{Message: "Data deleted from 2/3 tables. Auth user deletion failed (OAuth issue)."}}
	navigated := make(chan string, 1)
	f := newFacade(d, func(p string) { navigated <- p })
	defer f.Close()

	var logouts int
	res := f.DeleteUserAccount(context.Background(), &User{ID: "u1", AccessToken: "tok"}, func(context.Context) error {
		logouts++
		return nil
	})
	if !res.Success || res.Message == "" || res.Report == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if logouts != 1 {
		t.Fatalf("expected one logout, got %d", logouts)
	}
	select {
	case p := <-navigated:
		if p != "/" {
			t.Fatalf("redirected to %q", p)
		}
	case <-time.After(time.Second):
		t.Fatal("redirect not scheduled")
	}
}

func TestDeleteUserAccountFailureLogsOut(t *testing.T) {
	cases := []struct {
		name    string
		deleter *fakeDeleter
		logout  error
		wantLog int
	}{
		{"remote error", &fakeDeleter{err: errors.New("account deletion request failed: Unauthorized")}, nil, 1},
		{"remote panic", &fakeDeleter{panics: true}, nil, 1},
		{"logout error", &fakeDeleter{}, errors.New("session store down"), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var navigated atomic.Bool
			f := newFacade(tc.deleter, func(string) { navigated.Store(true) })
			var logouts int
			res := f.DeleteUserAccount(context.Background(), &User{ID: "u1"}, func(context.Context) error {
				logouts++
				return tc.logout
			})
			if res.Success || res.Error == "" {
				t.Fatalf("unexpected result %+v", res)
			}
			if logouts != tc.wantLog {
				t.Fatalf("logouts = %d, want %d", logouts, tc.wantLog)
			}
			time.Sleep(30 * time.Millisecond)
			if navigated.Load() {
				t.Fatal("must not redirect after failure")
			}
		})
	}
}

func TestCloseCancelsRedirect(t *testing.T) {
	var navigated atomic.Bool
	f := New(&fakeDeleter{}, func(string) { navigated.Store(true) }, WithRedirectDelay(50*time.Millisecond), WithLogger(zap.NewNop()))
	if res := f.DeleteUserAccount(context.Background(), &User{ID: "u1"}, nil); !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	f.Close()
	time.Sleep(100 * time.Millisecond)
	if navigated.Load() {
		t.Fatal("redirect fired after Close")
	}
}

func TestDataDeletionSummary(t *testing.T) {
	got := DataDeletionSummary()
	if len(got) != 7 {
		t.Fatalf("expected 7 categories, got %d", len(got))
	}
	if got[0].Type != "Profile Information" || got[6].Type != "App Preferences" {
		t.Fatalf("unexpected order %+v", got)
	}
}
