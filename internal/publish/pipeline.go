package publish

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/staging"
	"github.com/temirov/tabmigrate/internal/statelog"
)

const (
	missingPublisherMessageConstant   = "content publisher not configured"
	missingProjectsMessageConstant    = "project lookup not configured"
	projectNotFoundDetailTemplate     = "project not found in server: %s"
	stagedArtifactMissingDetail       = "staged artifact missing"
	publishSuccessDetailTemplate      = "%s has been successfully published:%s"
	unsupportedKindTemplateConstant   = "unsupported content kind %q"
	scratchCreationFailedTemplate     = "preparing scratch directory failed: %w"
	logCreationFailedTemplateConstant = "creating %s publish log failed: %w"
	logCloseFailedTemplateConstant    = "closing %s publish log failed: %w"
	logReadFailedTemplateConstant     = "reading %s download log failed: %w"
	logAppendFailedTemplateConstant   = "recording %s %q failed: %w"
	stagingRootCreationFailedTemplate = "preparing staging root failed: %w"
	missingStagingRootTemplate        = "publish pipeline: %w"
	downloadLogMissingLogMessage      = "download log not found; nothing to publish"
	kindStartedLogMessageConstant     = "publishing staged objects"
	kindCompletedLogMessageConstant   = "publish finished"
	itemSucceededLogMessageConstant   = "object published"
	itemFailedLogMessageConstant      = "object publish failed"
	viewsHiddenLogMessageConstant     = "republished workbook with hidden views"
	logFieldKindConstant              = "kind"
	logFieldSequenceConstant          = "sequence"
	logFieldProjectConstant           = "project"
	logFieldNameConstant              = "name"
	logFieldPathConstant              = "path"
	logFieldDetailConstant            = "detail"
	logFieldLogPathConstant           = "log_path"
	logFieldHiddenViewsConstant       = "hidden_views"
	logFieldRecordCountConstant       = "records"
	logFieldFailureCountConstant      = "failures"
)

// ErrPublisherNotConfigured indicates a nil ContentPublisher.
var ErrPublisherNotConfigured = errors.New(missingPublisherMessageConstant)

// ErrProjectsNotConfigured indicates a nil ProjectLookup.
var ErrProjectsNotConfigured = errors.New(missingProjectsMessageConstant)

// ContentPublisher uploads artifacts and lists the views of published workbooks.
type ContentPublisher interface {
	Publish(executionContext context.Context, request content.PublishRequest) (content.PublishedObject, error)
	ListWorkbookViews(executionContext context.Context, workbookID string) ([]content.View, error)
}

// ProjectLookup resolves a project name to its identifier on the target.
type ProjectLookup interface {
	Lookup(name string) (string, bool)
}

// Options configure a Pipeline.
type Options struct {
	Layout     staging.Layout
	FileSystem staging.FileSystem
}

// Pipeline publishes the staged objects of one kind at a time.
type Pipeline struct {
	logger     *zap.Logger
	layout     staging.Layout
	fileSystem staging.FileSystem
}

// NewPipeline validates options and constructs a Pipeline.
func NewPipeline(logger *zap.Logger, options Options) (*Pipeline, error) {
	if len(options.Layout.Root()) == 0 {
		return nil, fmt.Errorf(missingStagingRootTemplate, staging.ErrRootNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := options.FileSystem
	if fileSystem == nil {
		fileSystem = staging.OSFileSystem{}
	}
	return &Pipeline{logger: logger, layout: options.Layout, fileSystem: fileSystem}, nil
}

// Run reads the kind's download log and republishes every row into its project, streaming one
// row per item into the kind's publish log, which is truncated first. A missing download log
// yields a header-only publish log and no records. Per-item failures are recorded as Error rows
// and never stop the loop.
func (pipeline *Pipeline) Run(executionContext context.Context, publisher ContentPublisher, kind content.Kind, projectLookup ProjectLookup) (records []statelog.PublishRecord, runError error) {
	if publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	if projectLookup == nil {
		return nil, ErrProjectsNotConfigured
	}
	if !kind.Valid() {
		return nil, fmt.Errorf(unsupportedKindTemplateConstant, string(kind))
	}
	if rootError := pipeline.layout.EnsureRoot(pipeline.fileSystem); rootError != nil {
		return nil, fmt.Errorf(stagingRootCreationFailedTemplate, rootError)
	}
	if kind == content.KindFlow {
		if _, scratchError := pipeline.layout.EnsureScratchDirectory(pipeline.fileSystem); scratchError != nil {
			return nil, fmt.Errorf(scratchCreationFailedTemplate, scratchError)
		}
	}

	kindLogger := pipeline.logger.With(zap.String(logFieldKindConstant, string(kind)))

	publishLogPath := pipeline.layout.PublishLogPath(kind)
	logWriter, creationError := statelog.CreatePublishLog(publishLogPath)
	if creationError != nil {
		return nil, fmt.Errorf(logCreationFailedTemplateConstant, kind, creationError)
	}
	defer func() {
		if closeError := logWriter.Close(); closeError != nil && runError == nil {
			runError = fmt.Errorf(logCloseFailedTemplateConstant, kind, closeError)
		}
	}()

	records = []statelog.PublishRecord{}
	downloadLogPath := pipeline.layout.DownloadLogPath(kind)
	logReader, openError := statelog.OpenDownloadLog(downloadLogPath)
	if errors.Is(openError, statelog.ErrLogNotFound) {
		kindLogger.Warn(downloadLogMissingLogMessage, zap.String(logFieldLogPathConstant, downloadLogPath))
		return records, nil
	}
	if openError != nil {
		return nil, fmt.Errorf(logReadFailedTemplateConstant, kind, openError)
	}
	defer func() { _ = logReader.Close() }()

	kindLogger.Info(kindStartedLogMessageConstant, zap.String(logFieldLogPathConstant, downloadLogPath))

	failures := 0
	for downloaded, readError := range logReader.Records() {
		var record statelog.PublishRecord
		var rowError statelog.RowError
		switch {
		case errors.As(readError, &rowError):
			record = failedRow(kind, rowError)
		case readError != nil:
			return records, fmt.Errorf(logReadFailedTemplateConstant, kind, readError)
		default:
			// Rows are published as the kind of the log they were read from.
			downloaded.Kind = kind
			record = pipeline.publishItem(executionContext, kindLogger, publisher, projectLookup, downloaded)
		}

		if appendError := logWriter.Append(record); appendError != nil {
			return records, fmt.Errorf(logAppendFailedTemplateConstant, kind, record.ObjectName, appendError)
		}
		records = append(records, record)
		if !record.Succeeded() {
			failures++
		}
		logRecord(kindLogger, record)
	}

	kindLogger.Info(kindCompletedLogMessageConstant, zap.Int(logFieldRecordCountConstant, len(records)), zap.Int(logFieldFailureCountConstant, failures))
	return records, nil
}

func (pipeline *Pipeline) publishItem(executionContext context.Context, logger *zap.Logger, publisher ContentPublisher, projectLookup ProjectLookup, downloaded statelog.DownloadRecord) statelog.PublishRecord {
	record := statelog.PublishRecord{Item: downloaded.Item}
	isWorkbook := downloaded.Kind == content.KindWorkbook
	showTabs := true
	var visibleViews []string
	if downloaded.Workbook != nil {
		showTabs = downloaded.Workbook.ShowTabs
		visibleViews = downloaded.Workbook.VisibleViews
	}
	if isWorkbook {
		record.Workbook = &statelog.WorkbookPublishState{ShowTabs: showTabs}
	}

	projectID, found := projectLookup.Lookup(downloaded.ProjectName)
	if !found {
		return failed(record, fmt.Sprintf(projectNotFoundDetailTemplate, downloaded.ProjectName))
	}
	if len(downloaded.StagedPath) == 0 {
		return failed(record, stagedArtifactMissingDetail)
	}

	request := content.PublishRequest{
		Kind:      downloaded.Kind,
		Name:      downloaded.ObjectName,
		ProjectID: projectID,
		FilePath:  downloaded.StagedPath,
		Overwrite: true,
	}
	if isWorkbook {
		request.ShowTabs = showTabs
		request.SkipConnectionCheck = true
	}

	published, publishError := publisher.Publish(executionContext, request)
	if publishError != nil {
		return failed(record, publishError.Error())
	}

	if isWorkbook {
		targetViews, viewsError := publisher.ListWorkbookViews(executionContext, published.ID)
		if viewsError != nil {
			return failed(record, viewsError.Error())
		}

		hidden := HiddenViews(targetViews, visibleViews)
		record.Workbook.HiddenViews = hidden
		if len(hidden) > 0 {
			request.HiddenViews = hidden
			republished, republishError := publisher.Publish(executionContext, request)
			if republishError != nil {
				return failed(record, republishError.Error())
			}
			published = republished
			logger.Debug(viewsHiddenLogMessageConstant, zap.String(logFieldNameConstant, downloaded.ObjectName), zap.Strings(logFieldHiddenViewsConstant, hidden))
		}
	}

	record.Outcome = statelog.OutcomeSuccess
	record.Detail = fmt.Sprintf(publishSuccessDetailTemplate, downloaded.Kind.Label(), published.WebpageURL)
	return record
}

func failedRow(kind content.Kind, rowError statelog.RowError) statelog.PublishRecord {
	record := statelog.PublishRecord{Item: rowError.Item}
	record.Kind = kind
	return failed(record, rowError.Error())
}

func failed(record statelog.PublishRecord, detail string) statelog.PublishRecord {
	record.Outcome = statelog.OutcomeError
	record.Detail = detail
	return record
}

func logRecord(logger *zap.Logger, record statelog.PublishRecord) {
	fields := []zap.Field{
		zap.Int(logFieldSequenceConstant, record.Sequence),
		zap.String(logFieldProjectConstant, record.ProjectName),
		zap.String(logFieldNameConstant, record.ObjectName),
		zap.String(logFieldPathConstant, record.StagedPath),
		zap.String(logFieldDetailConstant, record.Detail),
	}
	if record.Succeeded() {
		logger.Info(itemSucceededLogMessageConstant, fields...)
		return
	}
	logger.Warn(itemFailedLogMessageConstant, fields...)
}
