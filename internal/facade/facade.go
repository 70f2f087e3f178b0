// Package facade is the client side of account deletion: eligibility checks, the remote
// call, logout and the post-deletion redirect.
package facade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"promosuite.app/internal/deletion"
	"promosuite.app/internal/obs"
)

const (
	reasonNoUser      = "No user logged in"
	successMessage    = "Your account has been successfully deleted. You will be redirected to the homepage."
	redirectPath      = "/"
	defaultRedirectIn = time.Second
)

// User is the signed-in session as the client sees it.
type User struct {
	ID          string
	Email       string
	AccessToken string
}

// Eligibility is the result of VerifyDeletionEligibility.
type Eligibility struct {
	Eligible bool
	Reason   string
	UserID   string
	Email    string
}

// Result is returned by DeleteUserAccount. It never carries a panic.
type Result struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
	Report  *deletion.Report `json:"report,omitempty"`
}

// Deleter performs the remote deletion call.
type Deleter interface {
	DeleteAccount(ctx context.Context, userID, credential string) (deletion.Report, error)
}

// Navigator moves the client to path. The web app redirects the browser; the CLI prints.
type Navigator func(path string)

// Option configures a Facade.
type Option func(*Facade)

// WithRedirectDelay overrides the pause between logout and navigation.
func WithRedirectDelay(d time.Duration) Option {
	return func(f *Facade) { f.redirectIn = d }
}

// WithLogger sets the logger used for caught failures.
func WithLogger(l *zap.Logger) Option {
	return func(f *Facade) { f.log = l }
}

// Facade orchestrates deletion from the client's point of view.
type Facade struct {
	deleter    Deleter
	navigate   Navigator
	redirectIn time.Duration
	log        *zap.Logger

	mu      sync.Mutex
	pending []*time.Timer
}

func New(d Deleter, nav Navigator, opts ...Option) *Facade {
	f := &Facade{
		deleter:    d,
		navigate:   nav,
		redirectIn: defaultRedirectIn,
		log:        obs.Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// VerifyDeletionEligibility is local only and never calls the backend.
func (f *Facade) VerifyDeletionEligibility(user *User) Eligibility {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return Eligibility{Eligible: false, Reason: reasonNoUser}
	}
	return Eligibility{Eligible: true, UserID: user.ID, Email: user.Email}
}

// DeleteUserAccount deletes the account, logs out and schedules the redirect. On any
// failure it logs out once more and reports the error.
func (f *Facade) DeleteUserAccount(ctx context.Context, user *User, onLogout func(context.Context) error) (res Result) {
	elig := f.VerifyDeletionEligibility(user)
	if !elig.Eligible {
		return Result{Success: false, Error: elig.Reason}
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("account deletion panicked: %v", r)
			f.log.Error("account deletion failed", zap.Error(err))
			f.logoutAfterFailure(ctx, onLogout)
			res = Result{Success: false, Error: err.Error()}
		}
	}()

	report, err := f.deleter.DeleteAccount(ctx, user.ID, user.AccessToken)
	if err == nil && onLogout != nil {
		err = onLogout(ctx)
		if err != nil {
			err = fmt.Errorf("logout: %w", err)
		}
	}
	if err != nil {
		f.log.Error("account deletion failed", zap.String("user_id", user.ID), zap.Error(err))
		f.logoutAfterFailure(ctx, onLogout)
		return Result{Success: false, Error: err.Error()}
	}

	f.scheduleRedirect()
	return Result{Success: true, Message: successMessage, Report: &report}
}

func (f *Facade) logoutAfterFailure(ctx context.Context, onLogout func(context.Context) error) {
	if onLogout == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.log.Warn("logout after failed deletion panicked", zap.Any("panic", r))
		}
	}()
	if err := onLogout(ctx); err != nil {
		f.log.Warn("logout after failed deletion", zap.Error(err))
	}
}

func (f *Facade) scheduleRedirect() {
	if f.navigate == nil {
		return
	}
	t := time.AfterFunc(f.redirectIn, func() { f.navigate(redirectPath) })
	f.mu.Lock()
	f.pending = append(f.pending, t)
	f.mu.Unlock()
}

// Close cancels redirects that have not fired yet.
func (f *Facade) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.pending {
		t.Stop()
	}
	f.pending = nil
}

// DataCategory is one kind of data removed with the account.
type DataCategory struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// DataDeletionSummary lists what is removed, shown before the user confirms.
func DataDeletionSummary() []DataCategory {
	return []DataCategory{
		{"Profile Information", "Your name, email, phone, and other profile details"},
		{"Created Content", "All flyers, designs, and social media posts you've created"},
		{"Media Assets", "Uploaded images, videos, and other media files"},
		{"Collections & Favorites", "Your saved templates and organized collections"},
		{"Usage Analytics", "Your activity history and usage statistics"},
		{"Subscription Data", "Billing information and subscription history"},
		{"App Preferences", "Settings, notifications, and customization preferences"},
	}
}
