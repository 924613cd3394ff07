// Package session supplies the credentials a chat connection is opened with.
//
// Accessors are read on every connection attempt, so a credential change on
// disk or in the environment is picked up by the next reconnect.
package session

// Session is the identity a single connection attempt is opened with.
type Session struct {
	Token  string
	UserID int64
}

// Accessor supplies the current credentials on demand.
// A false second return value means the value is absent.
type Accessor interface {
	Token() (string, bool)
	UserID() (int64, bool)
}

// Navigator is told to send the user to the login boundary when no
// credentials are available.
type Navigator interface {
	RedirectToLogin()
}

// NavigatorFunc adapts a function into a Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) RedirectToLogin() {
	f()
}

// Load reads a complete Session from a. It reports false when either the
// token or the user id is missing.
func Load(a Accessor) (Session, bool) {
	token, ok := a.Token()
	if !ok || token == "" {
		return Session{}, false
	}
	userID, ok := a.UserID()
	if !ok {
		return Session{}, false
	}
	return Session{Token: token, UserID: userID}, true
}

// Static is an Accessor over fixed values. Use it for tests and for
// credentials passed on the command line.
type Static struct {
	token     string
	userID    int64
	hasUserID bool
}

// NewStatic returns an Accessor that always yields token and userID.
func NewStatic(token string, userID int64) Static {
	return Static{token: token, userID: userID, hasUserID: true}
}

func (s Static) Token() (string, bool) {
	return s.token, s.token != ""
}

func (s Static) UserID() (int64, bool) {
	return s.userID, s.hasUserID
}
