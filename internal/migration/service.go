package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/download"
	"github.com/temirov/tabmigrate/internal/projects"
	"github.com/temirov/tabmigrate/internal/publish"
	"github.com/temirov/tabmigrate/internal/serverclient"
	"github.com/temirov/tabmigrate/internal/session"
	"github.com/temirov/tabmigrate/internal/staging"
	"github.com/temirov/tabmigrate/internal/statelog"
)

const (
	authenticatorMissingMessageConstant = "migration authenticator not configured"
	phaseErrorTemplateConstant          = "%s phase failed: %v"
	projectMappingFailedTemplate        = "building project map failed: %w"
	phaseStartedLogMessageConstant      = "migration phase started"
	phaseCompletedLogMessageConstant    = "migration phase completed"
	phaseFailedLogMessageConstant       = "migration phase failed"
	projectsMappedLogMessageConstant    = "target projects mapped"
	logFieldRunIdentifierConstant       = "run_id"
	logFieldPhaseConstant               = "phase"
	logFieldKindsConstant               = "kinds"
	logFieldSucceededConstant           = "succeeded"
	logFieldFailedConstant              = "failed"
	logFieldAuthenticationConstant      = "authentication_failure"
	logFieldProjectCountConstant        = "projects"
)

// ErrAuthenticatorNotConfigured indicates the service has no way to sign in.
var ErrAuthenticatorNotConfigured = errors.New(authenticatorMissingMessageConstant)

// Connection is everything both phases ask of an authenticated server session.
type Connection interface {
	session.SignOuter
	download.Source
	publish.ContentPublisher
	projects.ProjectLister
}

// Phase names one half of a migration.
type Phase string

// Migration phases.
const (
	PhaseDownload Phase = Phase("download")
	PhasePublish  Phase = Phase("publish")
)

// StatusCode is the coarse outcome of a phase: 0 when it completed, 1 on a fatal error.
type StatusCode int

// Status codes.
const (
	StatusCodeSuccess StatusCode = 0
	StatusCodeFailure StatusCode = 1
)

// KindSummary counts the per-item outcomes of one kind.
type KindSummary struct {
	Kind      content.Kind `yaml:"kind"`
	Succeeded int          `yaml:"succeeded"`
	Failed    int          `yaml:"failed"`
}

// PhaseResult reports the outcome of one phase. Per-item errors live in the records and do not
// change StatusCode.
type PhaseResult struct {
	Phase           Phase                     `yaml:"phase"`
	StatusCode      StatusCode                `yaml:"status_code"`
	Message         string                    `yaml:"message,omitempty"`
	Summaries       []KindSummary             `yaml:"summaries"`
	DownloadRecords []statelog.DownloadRecord `yaml:"download_records,omitempty"`
	PublishRecords  []statelog.PublishRecord  `yaml:"publish_records,omitempty"`
	Cause           error                     `yaml:"-"`
}

// Succeeded reports whether the phase completed without a fatal error.
func (result PhaseResult) Succeeded() bool {
	return result.StatusCode == StatusCodeSuccess
}

// Err returns a PhaseError for failed phases and nil otherwise.
func (result PhaseResult) Err() error {
	if result.Succeeded() {
		return nil
	}
	return PhaseError{Phase: result.Phase, Cause: result.Cause}
}

// PhaseError reports a fatal phase failure.
type PhaseError struct {
	Phase Phase
	Cause error
}

// Error describes the failed phase.
func (phaseError PhaseError) Error() string {
	return fmt.Sprintf(phaseErrorTemplateConstant, phaseError.Phase, phaseError.Cause)
}

// Unwrap exposes the fatal cause.
func (phaseError PhaseError) Unwrap() error {
	return phaseError.Cause
}

// PhaseOptions select the server, staging root, and kinds a phase works on.
type PhaseOptions struct {
	Server   session.Parameters
	Layout   staging.Layout
	Tag      string
	PageSize int
	Kinds    []content.Kind
}

func (options PhaseOptions) kinds() []content.Kind {
	if len(options.Kinds) == 0 {
		return content.OrderedKinds()
	}
	return options.Kinds
}

// ServiceDependencies describes the collaborators of a Service.
type ServiceDependencies struct {
	Logger              *zap.Logger
	Authenticator       session.Authenticator[Connection]
	FileSystem          staging.FileSystem
	IdentifierGenerator func() string
}

// Service runs the download and publish phases, one authenticated session per phase.
type Service struct {
	logger        *zap.Logger
	authenticator session.Authenticator[Connection]
	fileSystem    staging.FileSystem
	runIdentifier string
}

// NewService validates dependencies and assigns the run identifier shared by every phase.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Authenticator == nil {
		return nil, ErrAuthenticatorNotConfigured
	}

	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = uuid.NewString
	}
	runIdentifier := identifierGenerator()

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = staging.OSFileSystem{}
	}

	return &Service{
		logger:        logger.With(zap.String(logFieldRunIdentifierConstant, runIdentifier)),
		authenticator: dependencies.Authenticator,
		fileSystem:    fileSystem,
		runIdentifier: runIdentifier,
	}, nil
}

// RunIdentifier returns the identifier attached to every log entry of this service.
func (service *Service) RunIdentifier() string {
	return service.runIdentifier
}

// Download signs in to the source server and downloads the tagged objects of each kind in order.
func (service *Service) Download(executionContext context.Context, options PhaseOptions) PhaseResult {
	logger := service.phaseLogger(PhaseDownload, options)
	result := PhaseResult{Phase: PhaseDownload}

	pipeline, pipelineError := download.NewPipeline(logger, download.Options{
		Tag:        options.Tag,
		Layout:     options.Layout,
		FileSystem: service.fileSystem,
		PageSize:   options.PageSize,
	})
	if pipelineError != nil {
		return service.complete(logger, result, pipelineError)
	}

	runError := session.Run(executionContext, logger, service.authenticator, options.Server, func(connection Connection) error {
		for _, kind := range options.kinds() {
			records, kindError := pipeline.Run(executionContext, connection, kind)
			result.DownloadRecords = append(result.DownloadRecords, records...)
			result.Summaries = append(result.Summaries, summarize(kind, records))
			if kindError != nil {
				return kindError
			}
		}
		return nil
	})

	return service.complete(logger, result, runError)
}

// Publish signs in to the target server, maps its projects, and publishes the staged objects of
// each kind in order, reading each kind's download log from the staging root.
func (service *Service) Publish(executionContext context.Context, options PhaseOptions) PhaseResult {
	logger := service.phaseLogger(PhasePublish, options)
	result := PhaseResult{Phase: PhasePublish}

	pipeline, pipelineError := publish.NewPipeline(logger, publish.Options{
		Layout:     options.Layout,
		FileSystem: service.fileSystem,
	})
	if pipelineError != nil {
		return service.complete(logger, result, pipelineError)
	}

	runError := session.Run(executionContext, logger, service.authenticator, options.Server, func(connection Connection) error {
		projectMap, mappingError := projects.NewResolver(logger, options.PageSize).Build(executionContext, connection)
		if mappingError != nil {
			return fmt.Errorf(projectMappingFailedTemplate, mappingError)
		}
		logger.Debug(projectsMappedLogMessageConstant, zap.Int(logFieldProjectCountConstant, projectMap.Len()))

		for _, kind := range options.kinds() {
			records, kindError := pipeline.Run(executionContext, connection, kind, projectMap)
			result.PublishRecords = append(result.PublishRecords, records...)
			result.Summaries = append(result.Summaries, summarize(kind, records))
			if kindError != nil {
				return kindError
			}
		}
		return nil
	})

	return service.complete(logger, result, runError)
}

func (service *Service) phaseLogger(phase Phase, options PhaseOptions) *zap.Logger {
	logger := service.logger.With(zap.String(logFieldPhaseConstant, string(phase)))
	logger.Info(phaseStartedLogMessageConstant, zap.Strings(logFieldKindsConstant, kindNames(options.kinds())))
	return logger
}

func (service *Service) complete(logger *zap.Logger, result PhaseResult, phaseError error) PhaseResult {
	if phaseError != nil {
		var authenticationError session.AuthenticationError
		result.StatusCode = StatusCodeFailure
		result.Message = phaseError.Error()
		result.Cause = phaseError
		logger.Error(
			phaseFailedLogMessageConstant,
			zap.Bool(logFieldAuthenticationConstant, errors.As(phaseError, &authenticationError)),
			zap.Error(phaseError),
		)
		return result
	}

	succeeded, failed := 0, 0
	for _, summary := range result.Summaries {
		succeeded += summary.Succeeded
		failed += summary.Failed
	}
	result.StatusCode = StatusCodeSuccess
	logger.Info(
		phaseCompletedLogMessageConstant,
		zap.Int(logFieldSucceededConstant, succeeded),
		zap.Int(logFieldFailedConstant, failed),
	)
	return result
}

func summarize[Record interface{ Succeeded() bool }](kind content.Kind, records []Record) KindSummary {
	summary := KindSummary{Kind: kind}
	for _, record := range records {
		if record.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// ServerConnector adapts session.ServerAuthenticator to the Connection both phases use.
type ServerConnector struct {
	authenticator *session.ServerAuthenticator
}

// NewServerConnector constructs a ServerConnector over the REST client.
func NewServerConnector(logger *zap.Logger, settings session.ClientSettings) *ServerConnector {
	return &ServerConnector{authenticator: session.NewServerAuthenticator(logger, settings)}
}

// SignIn opens a REST session.
func (connector *ServerConnector) SignIn(executionContext context.Context, parameters session.Parameters) (Connection, error) {
	serverSession, signInError := connector.authenticator.SignIn(executionContext, parameters)
	if signInError != nil {
		return nil, signInError
	}
	return serverSession, nil
}

var _ Connection = (*serverclient.Session)(nil)
