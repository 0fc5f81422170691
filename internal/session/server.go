package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/serverclient"
)

// ClientSettings carry the transport options shared by every server connection.
type ClientSettings struct {
	APIVersion     string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	HTTPClient     serverclient.HTTPClient
}

// ServerAuthenticator signs in to an analytics server through the REST client.
type ServerAuthenticator struct {
	logger   *zap.Logger
	settings ClientSettings
}

// NewServerAuthenticator constructs a ServerAuthenticator.
func NewServerAuthenticator(logger *zap.Logger, settings ClientSettings) *ServerAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerAuthenticator{logger: logger, settings: settings}
}

// SignIn builds a client for the parameters' address and authenticates with the selected credential pair.
func (authenticator *ServerAuthenticator) SignIn(executionContext context.Context, parameters Parameters) (*serverclient.Session, error) {
	client, clientError := serverclient.NewClient(authenticator.logger, authenticator.settings.HTTPClient, serverclient.Configuration{
		Address:            parameters.Address,
		APIVersion:         authenticator.settings.APIVersion,
		InsecureSkipVerify: parameters.InsecureSkipVerify,
		RequestTimeout:     authenticator.settings.RequestTimeout,
		RetryAttempts:      authenticator.settings.RetryAttempts,
		RetryDelay:         authenticator.settings.RetryDelay,
		RetryMaxDelay:      authenticator.settings.RetryMaxDelay,
	})
	if clientError != nil {
		return nil, clientError
	}

	return client.SignIn(executionContext, serverclient.SignInRequest{
		Site:                parameters.Site,
		Name:                parameters.Credentials.Name,
		Secret:              parameters.Credentials.Secret,
		PersonalAccessToken: parameters.Credentials.Method() == AuthenticationMethodPersonalAccessToken,
	})
}
