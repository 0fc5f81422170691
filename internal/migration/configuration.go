package migration

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/credentials"
	"github.com/temirov/tabmigrate/internal/pagination"
	"github.com/temirov/tabmigrate/internal/session"
)

const (
	defaultStagingRootConstant             = "~/tabmigrate"
	defaultTagConstant                     = "migrate"
	defaultAPIVersionConstant              = "3.19"
	defaultRequestTimeoutConstant          = 10 * time.Minute
	defaultRetryAttemptsConstant           = 3
	defaultRetryDelayConstant              = time.Second
	defaultRetryMaxDelayConstant           = 30 * time.Second
	configurationKeySeparatorConstant      = "."
	stagingRootConfigurationKeyConstant    = "staging_root"
	tagConfigurationKeyConstant            = "tag"
	kindsConfigurationKeyConstant          = "kinds"
	pageSizeConfigurationKeyConstant       = "page_size"
	apiVersionConfigurationKeyConstant     = "api_version"
	requestTimeoutConfigurationKeyConstant = "request_timeout"
	retryAttemptsConfigurationKeyConstant  = "retry.attempts"
	retryDelayConfigurationKeyConstant     = "retry.delay"
	retryMaxDelayConfigurationKeyConstant  = "retry.max_delay"
	dotenvPathConfigurationKeyConstant     = "dotenv_path"
	serverAddressFieldConstant             = "address"
	serverNameFieldConstant                = "name"
	serverSecretFieldConstant              = "secret"
	missingServerFieldTemplateConstant     = "%s server %s must be configured"
	resolveServerFieldTemplateConstant     = "resolving %s server %s failed: %w"
	unknownKindTemplateConstant            = "kinds: %w"
)

// ServerRole names which side of the migration a server configuration describes.
type ServerRole string

// Server roles.
const (
	ServerRoleSource ServerRole = ServerRole("source")
	ServerRoleTarget ServerRole = ServerRole("target")
)

// RetryConfiguration controls how throttled server calls are retried.
type RetryConfiguration struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// ServerConfiguration describes one analytics server. Name and Secret may reference
// env:NAME or file:/path sources; a bare Secret is read as an environment variable name.
type ServerConfiguration struct {
	Address             string `mapstructure:"address"`
	Site                string `mapstructure:"site"`
	PersonalAccessToken bool   `mapstructure:"personal_access_token"`
	Name                string `mapstructure:"name"`
	Secret              string `mapstructure:"secret"`
	InsecureSkipVerify  bool   `mapstructure:"insecure_skip_verify"`
}

// Configuration captures persisted settings for the migration commands.
type Configuration struct {
	StagingRoot    string              `mapstructure:"staging_root"`
	Tag            string              `mapstructure:"tag"`
	Kinds          []string            `mapstructure:"kinds"`
	PageSize       int                 `mapstructure:"page_size"`
	APIVersion     string              `mapstructure:"api_version"`
	RequestTimeout time.Duration       `mapstructure:"request_timeout"`
	Retry          RetryConfiguration  `mapstructure:"retry"`
	DotenvPath     string              `mapstructure:"dotenv_path"`
	Source         ServerConfiguration `mapstructure:"source"`
	Target         ServerConfiguration `mapstructure:"target"`
}

// DefaultConfiguration returns baseline migration settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		StagingRoot:    defaultStagingRootConstant,
		Tag:            defaultTagConstant,
		Kinds:          kindNames(content.OrderedKinds()),
		PageSize:       pagination.DefaultPageSize(),
		APIVersion:     defaultAPIVersionConstant,
		RequestTimeout: defaultRequestTimeoutConstant,
		Retry: RetryConfiguration{
			Attempts: defaultRetryAttemptsConstant,
			Delay:    defaultRetryDelayConstant,
			MaxDelay: defaultRetryMaxDelayConstant,
		},
	}
}

// DefaultConfigurationValues exposes the defaults as viper keys beneath prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultConfiguration()
	values := map[string]any{
		stagingRootConfigurationKeyConstant:    defaults.StagingRoot,
		tagConfigurationKeyConstant:            defaults.Tag,
		kindsConfigurationKeyConstant:          defaults.Kinds,
		pageSizeConfigurationKeyConstant:       defaults.PageSize,
		apiVersionConfigurationKeyConstant:     defaults.APIVersion,
		requestTimeoutConfigurationKeyConstant: defaults.RequestTimeout.String(),
		retryAttemptsConfigurationKeyConstant:  defaults.Retry.Attempts,
		retryDelayConfigurationKeyConstant:     defaults.Retry.Delay.String(),
		retryMaxDelayConfigurationKeyConstant:  defaults.Retry.MaxDelay.String(),
		dotenvPathConfigurationKeyConstant:     defaults.DotenvPath,
	}

	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return values
	}

	prefixed := make(map[string]any, len(values))
	for key, value := range values {
		prefixed[trimmedPrefix+configurationKeySeparatorConstant+key] = value
	}
	return prefixed
}

// Sanitize trims values and restores defaults for unset settings.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.StagingRoot = strings.TrimSpace(configuration.StagingRoot)
	if len(sanitized.StagingRoot) == 0 {
		sanitized.StagingRoot = defaults.StagingRoot
	}
	sanitized.Tag = strings.TrimSpace(configuration.Tag)
	if len(sanitized.Tag) == 0 {
		sanitized.Tag = defaults.Tag
	}

	sanitized.Kinds = nil
	for _, kindName := range configuration.Kinds {
		trimmedKind := strings.TrimSpace(kindName)
		if len(trimmedKind) > 0 {
			sanitized.Kinds = append(sanitized.Kinds, trimmedKind)
		}
	}
	if len(sanitized.Kinds) == 0 {
		sanitized.Kinds = defaults.Kinds
	}

	if sanitized.PageSize <= 0 {
		sanitized.PageSize = defaults.PageSize
	}
	sanitized.APIVersion = strings.TrimSpace(configuration.APIVersion)
	if len(sanitized.APIVersion) == 0 {
		sanitized.APIVersion = defaults.APIVersion
	}
	if sanitized.RequestTimeout <= 0 {
		sanitized.RequestTimeout = defaults.RequestTimeout
	}
	if sanitized.Retry.Attempts <= 0 {
		sanitized.Retry.Attempts = defaults.Retry.Attempts
	}
	if sanitized.Retry.Delay <= 0 {
		sanitized.Retry.Delay = defaults.Retry.Delay
	}
	if sanitized.Retry.MaxDelay <= 0 {
		sanitized.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	sanitized.DotenvPath = strings.TrimSpace(configuration.DotenvPath)
	sanitized.Source = configuration.Source.sanitize()
	sanitized.Target = configuration.Target.sanitize()

	return sanitized
}

// SelectedKinds parses the configured kinds and returns them in processing order.
func (configuration Configuration) SelectedKinds() ([]content.Kind, error) {
	if len(configuration.Kinds) == 0 {
		return content.OrderedKinds(), nil
	}

	requested := make([]content.Kind, 0, len(configuration.Kinds))
	for _, kindName := range configuration.Kinds {
		kind, parseError := content.ParseKind(kindName)
		if parseError != nil {
			return nil, fmt.Errorf(unknownKindTemplateConstant, parseError)
		}
		requested = append(requested, kind)
	}

	selected := make([]content.Kind, 0, len(requested))
	for _, kind := range content.OrderedKinds() {
		if slices.Contains(requested, kind) {
			selected = append(selected, kind)
		}
	}
	return selected, nil
}

// ClientSettings converts transport settings for the server authenticator.
func (configuration Configuration) ClientSettings() session.ClientSettings {
	return session.ClientSettings{
		APIVersion:     configuration.APIVersion,
		RequestTimeout: configuration.RequestTimeout,
		RetryAttempts:  configuration.Retry.Attempts,
		RetryDelay:     configuration.Retry.Delay,
		RetryMaxDelay:  configuration.Retry.MaxDelay,
	}
}

// Server returns the configuration of the server playing role.
func (configuration Configuration) Server(role ServerRole) ServerConfiguration {
	if role == ServerRoleTarget {
		return configuration.Target
	}
	return configuration.Source
}

func (server ServerConfiguration) sanitize() ServerConfiguration {
	sanitized := server
	sanitized.Address = strings.TrimSpace(server.Address)
	sanitized.Site = strings.TrimSpace(server.Site)
	sanitized.Name = strings.TrimSpace(server.Name)
	sanitized.Secret = strings.TrimSpace(server.Secret)
	return sanitized
}

// Parameters resolves credential references and returns session parameters for role.
// An empty Site selects the server's default site.
func (server ServerConfiguration) Parameters(resolutionContext context.Context, role ServerRole, resolver *credentials.Resolver) (session.Parameters, error) {
	if len(strings.TrimSpace(server.Address)) == 0 {
		return session.Parameters{}, fmt.Errorf(missingServerFieldTemplateConstant, role, serverAddressFieldConstant)
	}
	if len(strings.TrimSpace(server.Name)) == 0 {
		return session.Parameters{}, fmt.Errorf(missingServerFieldTemplateConstant, role, serverNameFieldConstant)
	}
	if len(strings.TrimSpace(server.Secret)) == 0 {
		return session.Parameters{}, fmt.Errorf(missingServerFieldTemplateConstant, role, serverSecretFieldConstant)
	}
	if resolver == nil {
		resolver = credentials.NewResolver(nil, nil)
	}

	name, nameError := resolver.ResolveValue(resolutionContext, server.Name)
	if nameError != nil {
		return session.Parameters{}, fmt.Errorf(resolveServerFieldTemplateConstant, role, serverNameFieldConstant, nameError)
	}
	secret, secretError := resolver.ResolveSecret(resolutionContext, server.Secret)
	if secretError != nil {
		return session.Parameters{}, fmt.Errorf(resolveServerFieldTemplateConstant, role, serverSecretFieldConstant, secretError)
	}

	return session.Parameters{
		Address: strings.TrimSpace(server.Address),
		Site:    strings.TrimSpace(server.Site),
		Credentials: session.Credentials{
			Name:                name,
			Secret:              secret,
			PersonalAccessToken: server.PersonalAccessToken,
		},
		InsecureSkipVerify: server.InsecureSkipVerify,
	}, nil
}

func kindNames(kinds []content.Kind) []string {
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return names
}
