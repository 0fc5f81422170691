package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	authenticationErrorTemplateConstant = "authentication to %s (site %q) failed: %v"
	missingAuthenticatorMessageConstant = "session authenticator not configured"
	missingBodyMessageConstant          = "session body not configured"
	signOutFailedMessageConstant        = "sign-out failed"
	sessionOpenedMessageConstant        = "session opened"
	sessionClosedMessageConstant        = "session closed"
	logFieldAddressConstant             = "address"
	logFieldSiteConstant                = "site"
	logFieldMethodConstant              = "auth_method"
)

// ErrAuthenticatorNotConfigured indicates a nil authenticator was supplied.
var ErrAuthenticatorNotConfigured = errors.New(missingAuthenticatorMessageConstant)

// ErrBodyNotConfigured indicates a nil session body was supplied.
var ErrBodyNotConfigured = errors.New(missingBodyMessageConstant)

// AuthenticationMethod names the credential pair presented at sign-in.
type AuthenticationMethod string

// Supported authentication methods.
const (
	AuthenticationMethodPassword            AuthenticationMethod = AuthenticationMethod("password")
	AuthenticationMethodPersonalAccessToken AuthenticationMethod = AuthenticationMethod("personal_access_token")
)

// Credentials hold either a username/password pair or a personal access token name/secret pair.
type Credentials struct {
	Name                string
	Secret              string
	PersonalAccessToken bool
}

// Method returns the single rule every phase uses to pick the credential pair.
func (credentials Credentials) Method() AuthenticationMethod {
	if credentials.PersonalAccessToken {
		return AuthenticationMethodPersonalAccessToken
	}
	return AuthenticationMethodPassword
}

// Parameters identify the server, site, and credentials of a session.
type Parameters struct {
	Address            string
	Site               string
	Credentials        Credentials
	InsecureSkipVerify bool
}

// AuthenticationError reports a failed sign-in. It is fatal for the phase that opened the session.
type AuthenticationError struct {
	Address string
	Site    string
	Cause   error
}

// Error describes the failed sign-in.
func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationErrorTemplateConstant, authenticationError.Address, authenticationError.Site, authenticationError.Cause)
}

// Unwrap exposes the underlying failure.
func (authenticationError AuthenticationError) Unwrap() error {
	return authenticationError.Cause
}

// SignOuter revokes an authenticated session.
type SignOuter interface {
	SignOut(executionContext context.Context) error
}

// Authenticator signs in and returns a connection of type Connection.
type Authenticator[Connection SignOuter] interface {
	SignIn(executionContext context.Context, parameters Parameters) (Connection, error)
}

// Run opens a session, passes it to body, and signs out on every exit path, including panics.
// Sign-in failures are returned as AuthenticationError. A sign-out failure is logged and only
// returned when body itself succeeded.
func Run[Connection SignOuter](executionContext context.Context, logger *zap.Logger, authenticator Authenticator[Connection], parameters Parameters, body func(Connection) error) (resultError error) {
	if authenticator == nil {
		return ErrAuthenticatorNotConfigured
	}
	if body == nil {
		return ErrBodyNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	address := strings.TrimSpace(parameters.Address)
	connection, signInError := authenticator.SignIn(executionContext, parameters)
	if signInError != nil {
		return AuthenticationError{Address: address, Site: parameters.Site, Cause: signInError}
	}

	sessionLogger := logger.With(
		zap.String(logFieldAddressConstant, address),
		zap.String(logFieldSiteConstant, parameters.Site),
	)
	sessionLogger.Debug(sessionOpenedMessageConstant, zap.String(logFieldMethodConstant, string(parameters.Credentials.Method())))

	defer func() {
		signOutError := connection.SignOut(context.WithoutCancel(executionContext))
		if signOutError != nil {
			sessionLogger.Warn(signOutFailedMessageConstant, zap.Error(signOutError))
			if resultError == nil {
				resultError = signOutError
			}
			return
		}
		sessionLogger.Debug(sessionClosedMessageConstant)
	}()

	return body(connection)
}
