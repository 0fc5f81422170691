package utils

import "context"

type commandContextKey struct{}

// CommandMetadata carries values the root command resolves before a subcommand runs.
type CommandMetadata struct {
	ConfigurationFilePath string
	LogLevel              LogLevel
}

// CommandContextAccessor stores CommandMetadata in command contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithMetadata returns a child of parentContext carrying metadata.
func (accessor CommandContextAccessor) WithMetadata(parentContext context.Context, metadata CommandMetadata) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, commandContextKey{}, metadata)
}

// Metadata extracts the metadata stored by WithMetadata.
func (accessor CommandContextAccessor) Metadata(executionContext context.Context) (CommandMetadata, bool) {
	if executionContext == nil {
		return CommandMetadata{}, false
	}
	metadata, available := executionContext.Value(commandContextKey{}).(CommandMetadata)
	return metadata, available
}

// WithConfigurationFilePath records the configuration file the root command loaded.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	metadata, _ := accessor.Metadata(parentContext)
	metadata.ConfigurationFilePath = configurationFilePath
	return accessor.WithMetadata(parentContext, metadata)
}

// ConfigurationFilePath reports the recorded configuration file. An empty path counts as absent.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	metadata, available := accessor.Metadata(executionContext)
	if !available || len(metadata.ConfigurationFilePath) == 0 {
		return "", false
	}
	return metadata.ConfigurationFilePath, true
}
