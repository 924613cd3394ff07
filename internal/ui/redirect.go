package ui

// Redirector is a session.Navigator that hands login redirects to the UI.
type Redirector struct {
	ch chan struct{}
}

// NewRedirector creates a Redirector.
func NewRedirector() *Redirector {
	return &Redirector{ch: make(chan struct{}, 1)}
}

// RedirectToLogin signals the UI. Repeated redirects before the UI reacts
// collapse into one.
func (r *Redirector) RedirectToLogin() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the UI waits on.
func (r *Redirector) C() <-chan struct{} {
	return r.ch
}
