// Package notify presents faults to the user and waits for acknowledgement.
//
// A Presenter blocks until the user dismisses the notification and then
// calls the request's OnDismiss callback. Whether the process continues
// afterwards is decided by the caller, not the presenter.
package notify

import (
	"context"
	"sync"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

// DefaultTitle is used when a request has no title
const DefaultTitle = "Error"

// Request is a single notification
type Request struct {
	Title     string
	Message   string
	Severity  faults.Severity
	OnDismiss func()
}

func (r Request) title() string {
	if r.Title == "" {
		return DefaultTitle
	}
	return r.Title
}

func (r Request) dismiss() {
	if r.OnDismiss != nil {
		r.OnDismiss()
	}
}

// Presenter shows a notification and blocks until it is dismissed
type Presenter interface {
	Present(ctx context.Context, req Request) error
}

// PresenterFunc adapts a function to Presenter
type PresenterFunc func(ctx context.Context, req Request) error

// Present calls f
func (f PresenterFunc) Present(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Recorder dismisses every notification immediately and keeps a copy.
// It serves headless runs and tests.
type Recorder struct {
	mu       sync.Mutex
	requests []Request
}

// Present records req and dismisses it
func (r *Recorder) Present(ctx context.Context, req Request) error {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	req.dismiss()
	return nil
}

// Requests returns the recorded notifications in presentation order
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Len returns the number of recorded notifications
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
