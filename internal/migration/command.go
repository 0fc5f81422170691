package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/credentials"
	"github.com/temirov/tabmigrate/internal/session"
	"github.com/temirov/tabmigrate/internal/staging"
	"github.com/temirov/tabmigrate/internal/utils"
	"github.com/temirov/tabmigrate/internal/utils/flags"
)

const (
	downloadCommandUseConstant              = "download"
	downloadCommandShortDescriptionConstant = "Download tagged content from the source server"
	downloadCommandLongDescriptionConstant  = "download signs in to the source server, stages every tagged flow, datasource, and workbook under the staging root, and records one row per object in <root>/<kind>s.csv."
	publishCommandUseConstant               = "publish"
	publishCommandShortDescriptionConstant  = "Publish staged content to the target server"
	publishCommandLongDescriptionConstant   = "publish reads the download logs under the staging root, publishes each staged object into the same-named project on the target server with overwrite semantics, restores workbook view visibility, and records one row per object in <root>/<kind>s_publish.csv."
	runCommandUseConstant                   = "run"
	runCommandShortDescriptionConstant      = "Download from the source server, then publish to the target server"
	runCommandLongDescriptionConstant       = "run executes the download phase against the source server followed by the publish phase against the target server. The publish phase runs even when the download phase failed and works from whatever logs were written."
	rootFlagNameConstant                    = "root"
	rootFlagUsageConstant                   = "Staging root directory for artifacts and state logs"
	tagFlagNameConstant                     = "tag"
	tagFlagUsageConstant                    = "Tag selecting the objects to migrate"
	kindsFlagNameConstant                   = "kinds"
	kindsFlagUsageConstant                  = "Content kinds to migrate (flow, datasource, workbook)"
	reportFlagNameConstant                  = "report"
	reportFlagUsageConstant                 = "Report printed after the run."
	unsupportedModeTemplateConstant         = "unsupported command mode %q"
	stagingRootErrorTemplateConstant        = "unable to resolve staging root: %w"
	dotenvErrorTemplateConstant             = "unable to load credentials: %w"
	serviceCreationErrorTemplateConstant    = "unable to construct migration service: %w"
	reportWriteErrorTemplateConstant        = "unable to write report: %w"
	configurationFileLogMessageConstant     = "migration configuration loaded"
	logFieldConfigurationFileConstant       = "config_file"
	logFieldStagingRootConstant             = "staging_root"
	logFieldTagConstant                     = "tag"
)

// Mode selects which phases a command runs.
type Mode string

// Command modes.
const (
	ModeDownload Mode = Mode("download")
	ModePublish  Mode = Mode("publish")
	ModeRun      Mode = Mode("run")
)

func (mode Mode) phases() []Phase {
	switch mode {
	case ModeDownload:
		return []Phase{PhaseDownload}
	case ModePublish:
		return []Phase{PhasePublish}
	case ModeRun:
		return []Phase{PhaseDownload, PhasePublish}
	default:
		return nil
	}
}

// MigrationExecutor runs migration phases.
type MigrationExecutor interface {
	RunIdentifier() string
	Download(executionContext context.Context, options PhaseOptions) PhaseResult
	Publish(executionContext context.Context, options PhaseOptions) PhaseResult
}

// ServiceProvider constructs a migration executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (MigrationExecutor, error)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the download, publish, and run Cobra commands.
type CommandBuilder struct {
	Mode                  Mode
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() Configuration
	ServiceProvider       ServiceProvider
	HomeDirectoryProvider staging.HomeDirectoryProvider
}

type commandOptions struct {
	configuration Configuration
	reportFormat  ReportFormat
}

// Build constructs the command for the builder's mode.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	var use, short, long string
	switch builder.Mode {
	case ModeDownload:
		use, short, long = downloadCommandUseConstant, downloadCommandShortDescriptionConstant, downloadCommandLongDescriptionConstant
	case ModePublish:
		use, short, long = publishCommandUseConstant, publishCommandShortDescriptionConstant, publishCommandLongDescriptionConstant
	case ModeRun:
		use, short, long = runCommandUseConstant, runCommandShortDescriptionConstant, runCommandLongDescriptionConstant
	default:
		return nil, fmt.Errorf(unsupportedModeTemplateConstant, builder.Mode)
	}

	command := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(rootFlagNameConstant, "", rootFlagUsageConstant)
	if builder.Mode != ModePublish {
		command.Flags().String(tagFlagNameConstant, "", tagFlagUsageConstant)
	}
	command.Flags().StringSlice(kindsFlagNameConstant, nil, kindsFlagUsageConstant)
	reportChoice := flags.NewChoice(string(ReportFormatSummary), ReportFormats())
	command.Flags().Var(reportChoice, reportFlagNameConstant, reportChoice.Usage(reportFlagUsageConstant))

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}
	configuration := options.configuration

	logger := builder.resolveLogger()
	if configurationFile, available := utils.NewCommandContextAccessor().ConfigurationFilePath(executionContext); available {
		logger.Debug(
			configurationFileLogMessageConstant,
			zap.String(logFieldConfigurationFileConstant, configurationFile),
			zap.String(logFieldStagingRootConstant, configuration.StagingRoot),
			zap.String(logFieldTagConstant, configuration.Tag),
		)
	}

	layout, layoutError := staging.NewLayout(configuration.StagingRoot, builder.HomeDirectoryProvider)
	if layoutError != nil {
		return fmt.Errorf(stagingRootErrorTemplateConstant, layoutError)
	}

	kinds, kindsError := configuration.SelectedKinds()
	if kindsError != nil {
		return kindsError
	}

	environmentLookup, dotenvError := credentials.NewDotenvEnvironmentLookup(configuration.DotenvPath)
	if dotenvError != nil {
		return fmt.Errorf(dotenvErrorTemplateConstant, dotenvError)
	}
	resolver := credentials.NewResolver(environmentLookup, nil)

	phases := builder.Mode.phases()
	serverParameters := make(map[Phase]session.Parameters, len(phases))
	for _, phase := range phases {
		role := ServerRoleSource
		if phase == PhasePublish {
			role = ServerRoleTarget
		}
		parameters, parametersError := configuration.Server(role).Parameters(executionContext, role, resolver)
		if parametersError != nil {
			return parametersError
		}
		serverParameters[phase] = parameters
	}

	service, serviceError := builder.resolveService(ServiceDependencies{
		Logger:        logger,
		Authenticator: NewServerConnector(logger, configuration.ClientSettings()),
	})
	if serviceError != nil {
		return fmt.Errorf(serviceCreationErrorTemplateConstant, serviceError)
	}

	report := RunReport{RunIdentifier: service.RunIdentifier()}
	for _, phase := range phases {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		phaseOptions := PhaseOptions{
			Server:   serverParameters[phase],
			Layout:   layout,
			Tag:      configuration.Tag,
			PageSize: configuration.PageSize,
			Kinds:    kinds,
		}
		if phase == PhaseDownload {
			report.Phases = append(report.Phases, service.Download(executionContext, phaseOptions))
		} else {
			report.Phases = append(report.Phases, service.Publish(executionContext, phaseOptions))
		}
	}

	if writeError := WriteReport(command.OutOrStdout(), report, options.reportFormat); writeError != nil {
		return errors.Join(report.Err(), fmt.Errorf(reportWriteErrorTemplateConstant, writeError))
	}

	return report.Err()
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	if command.Flags().Changed(rootFlagNameConstant) {
		rootValue, _ := command.Flags().GetString(rootFlagNameConstant)
		if trimmedRoot := strings.TrimSpace(rootValue); len(trimmedRoot) > 0 {
			configuration.StagingRoot = trimmedRoot
		}
	}
	if command.Flags().Lookup(tagFlagNameConstant) != nil && command.Flags().Changed(tagFlagNameConstant) {
		tagValue, _ := command.Flags().GetString(tagFlagNameConstant)
		configuration.Tag = strings.TrimSpace(tagValue)
	}
	if command.Flags().Changed(kindsFlagNameConstant) {
		kindValues, _ := command.Flags().GetStringSlice(kindsFlagNameConstant)
		configuration.Kinds = kindValues
		configuration = configuration.Sanitize()
	}

	reportFormat, reportError := ParseReportFormat(command.Flags().Lookup(reportFlagNameConstant).Value.String())
	if reportError != nil {
		return commandOptions{}, reportError
	}

	return commandOptions{configuration: configuration, reportFormat: reportFormat}, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveService(dependencies ServiceDependencies) (MigrationExecutor, error) {
	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	service, serviceError := NewService(dependencies)
	if serviceError != nil {
		return nil, serviceError
	}
	return service, nil
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return DefaultConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

var _ MigrationExecutor = (*Service)(nil)
