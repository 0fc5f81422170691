package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/migration"
	"github.com/temirov/tabmigrate/internal/utils"
)

const (
	applicationNameConstant                 = "tabmigrate"
	applicationShortDescriptionConstant     = "Migrate tagged analytics content between server sites"
	applicationLongDescriptionConstant      = "tabmigrate downloads flows, datasources, and workbooks carrying a tag from a source site into a staging directory and republishes them into matching projects on a target site."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level (debug, info, warn, error)."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonLogLevelConfigKeyConstant         = "common.log_level"
	commonLogFormatConfigKeyConstant        = "common.log_format"
	migrationConfigurationKeyConstant       = "migration"
	environmentPrefixConstant               = "TABMIGRATE"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	defaultConfigurationSearchPathConstant  = "."
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	commandBuildErrorTemplateConstant       = "unable to build %s command: %w"
)

// ApplicationConfiguration describes the persisted configuration for the CLI.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration `mapstructure:"common"`
	Migration migration.Configuration        `mapstructure:"migration"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	serviceProvider        migration.ServiceProvider
}

// ApplicationOption customizes an Application during construction.
type ApplicationOption func(*Application)

// WithLogOutput directs diagnostics to output instead of standard error.
func WithLogOutput(output io.Writer) ApplicationOption {
	return func(application *Application) {
		application.loggerFactory = utils.NewLoggerFactoryWithOutput(output)
	}
}

// WithServiceProvider replaces the migration service constructor used by the subcommands.
func WithServiceProvider(serviceProvider migration.ServiceProvider) ApplicationOption {
	return func(application *Application) {
		application.serviceProvider = serviceProvider
	}
}

// WithConfigurationSearchPaths replaces the directories searched for config.yaml.
func WithConfigurationSearchPaths(searchPaths ...string) ApplicationOption {
	return func(application *Application) {
		application.configurationLoader = newConfigurationLoader(searchPaths)
	}
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication(options ...ApplicationOption) (*Application, error) {
	application := &Application{
		configurationLoader:    newConfigurationLoader([]string{defaultConfigurationSearchPathConstant}),
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}
	for _, option := range options {
		option(application)
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	for _, mode := range []migration.Mode{migration.ModeDownload, migration.ModePublish, migration.ModeRun} {
		builder := migration.CommandBuilder{
			Mode: mode,
			LoggerProvider: func() *zap.Logger {
				return application.logger
			},
			ConfigurationProvider: func() migration.Configuration {
				return application.configuration.Migration
			},
			ServiceProvider: application.serviceProvider,
		}
		migrationCommand, buildError := builder.Build()
		if buildError != nil {
			return nil, fmt.Errorf(commandBuildErrorTemplateConstant, mode, buildError)
		}
		cobraCommand.AddCommand(migrationCommand)
	}

	application.rootCommand = cobraCommand
	return application, nil
}

// SetArguments replaces the arguments parsed by Execute.
func (application *Application) SetArguments(arguments []string) {
	application.rootCommand.SetArgs(arguments)
}

// SetOutput directs command output such as reports and help text to output.
func (application *Application) SetOutput(output io.Writer) {
	application.rootCommand.SetOut(output)
	application.rootCommand.SetErr(output)
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := utils.SyncLogger(application.logger); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	application, applicationError := NewApplication()
	if applicationError != nil {
		return applicationError
	}
	return application.Execute()
}

func newConfigurationLoader(searchPaths []string) *utils.ConfigurationLoader {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		searchPaths,
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	return configurationLoader
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatConsole),
	}
	for configurationKey, configurationValue := range migration.DefaultConfigurationValues(migrationConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration

	rootFlags := command.Root().PersistentFlags()
	if rootFlags.Changed(logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if rootFlags.Changed(logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logLevel := utils.LogLevel(application.configuration.Common.LogLevel)
	logger, loggerCreationError := application.loggerFactory.CreateLogger(logLevel, utils.LogFormat(application.configuration.Common.LogFormat))
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}
	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	updatedContext := application.commandContextAccessor.WithMetadata(command.Context(), utils.CommandMetadata{
		ConfigurationFilePath: application.configurationMetadata.ConfigFileUsed,
		LogLevel:              logLevel,
	})
	command.SetContext(updatedContext)
	return nil
}
