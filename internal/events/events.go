package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Event names the frontend subscribes to
const (
	WorkflowState   = "workflow:state"
	OperationUpdate = "operation:update"
	OperationError  = "operation:error"
	ToastEvent      = "toast"
	DashboardStats  = "dashboard:stats"
	DashboardHealth = "dashboard:health"
	DashboardVenues = "dashboard:venues"
)

// Emitter pushes a named payload to whatever renders the application state
type Emitter interface {
	Emit(name string, payload any)
}

// WailsEmitter forwards events to the desktop frontend
type WailsEmitter struct {
	mu  sync.RWMutex
	ctx context.Context
}

// NewWailsEmitter returns an emitter that is silent until Bind is called with
// the context Wails hands to OnStartup
func NewWailsEmitter() *WailsEmitter {
	return &WailsEmitter{}
}

// Bind attaches the Wails runtime context
func (w *WailsEmitter) Bind(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
}

// Emit implements Emitter
func (w *WailsEmitter) Emit(name string, payload any) {
	w.mu.RLock()
	ctx := w.ctx
	w.mu.RUnlock()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, name, payload)
}

// Noop discards every event
type Noop struct{}

// Emit implements Emitter
func (Noop) Emit(string, any) {}

// Func adapts a function to Emitter
type Func func(name string, payload any)

// Emit implements Emitter
func (f Func) Emit(name string, payload any) { f(name, payload) }

// Recorded is one event captured by a Recorder
type Recorded struct {
	Name    string
	Payload any
}

// Recorder keeps every emitted event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Emit implements Emitter
func (r *Recorder) Emit(name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Name: name, Payload: payload})
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Named returns the payloads recorded under name, in order
func (r *Recorder) Named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Toasts returns every toast recorded so far
func (r *Recorder) Toasts() []Toast {
	var out []Toast
	for _, p := range r.Named(ToastEvent) {
		if t, ok := p.(Toast); ok {
			out = append(out, t)
		}
	}
	return out
}

// ToastVariant selects how the frontend styles a notification
type ToastVariant string

const (
	ToastSuccess ToastVariant = "success"
	ToastError   ToastVariant = "destructive"
	ToastWarning ToastVariant = "warning"
	ToastInfo    ToastVariant = "default"
)

// Toast is a user notification
type Toast struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Variant     ToastVariant `json:"variant"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NewToast builds a toast with a fresh id
func NewToast(variant ToastVariant, title, description string) Toast {
	return Toast{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Variant:     variant,
		CreatedAt:   time.Now(),
	}
}

// Notify emits a toast
func Notify(e Emitter, variant ToastVariant, title, description string) Toast {
	t := NewToast(variant, title, description)
	e.Emit(ToastEvent, t)
	return t
}
