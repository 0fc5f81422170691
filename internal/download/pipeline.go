package download

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/catalog"
	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/staging"
	"github.com/temirov/tabmigrate/internal/statelog"
)

const (
	missingTagMessageConstant         = "migration tag must be provided"
	missingSourceMessageConstant      = "download source not configured"
	missingProjectNameDetailConstant  = "missing project name"
	downloadSuccessDetailTemplate     = "%s '%s' downloaded successfully in '%s'!"
	downloadErrorDetailPrefixConstant = "Error in download:"
	viewListingErrorDetailPrefix      = "Error in view listing:"
	listingFailedTemplateConstant     = "listing %s failed: %w"
	logAppendFailedTemplateConstant   = "recording %s %q failed: %w"
	itemSucceededLogMessageConstant   = "object downloaded"
	itemFailedLogMessageConstant      = "object download failed"
	kindStartedLogMessageConstant     = "downloading tagged objects"
	kindCompletedLogMessageConstant   = "download finished"
	logFieldKindConstant              = "kind"
	logFieldSequenceConstant          = "sequence"
	logFieldProjectConstant           = "project"
	logFieldNameConstant              = "name"
	logFieldPathConstant              = "path"
	logFieldDetailConstant            = "detail"
	logFieldTagConstant               = "tag"
	logFieldLogPathConstant           = "log_path"
	logFieldRecordCountConstant       = "records"
	logFieldFailureCountConstant      = "failures"
	firstSequenceNumberConstant       = 1
	missingPipelineOptionTemplate     = "download pipeline: %w"
	logCreationFailedTemplateConstant = "creating %s state log failed: %w"
	logCloseFailedTemplateConstant    = "closing %s state log failed: %w"
	stagingRootCreationFailedTemplate = "preparing staging root failed: %w"
	unsupportedKindTemplateConstant   = "unsupported content kind %q"
)

// ErrTagNotConfigured indicates an empty migration tag.
var ErrTagNotConfigured = errors.New(missingTagMessageConstant)

// ErrSourceNotConfigured indicates a nil Source.
var ErrSourceNotConfigured = errors.New(missingSourceMessageConstant)

// ContentDownloader fetches artifacts and workbook views from the source site.
type ContentDownloader interface {
	Download(executionContext context.Context, kind content.Kind, objectID string, directory string) (string, error)
	ListWorkbookViews(executionContext context.Context, workbookID string) ([]content.View, error)
}

// Source lists and downloads objects.
type Source interface {
	catalog.PageLister
	ContentDownloader
}

// Options configure a Pipeline.
type Options struct {
	Tag        string
	Layout     staging.Layout
	FileSystem staging.FileSystem
	PageSize   int
}

// Pipeline downloads the tagged objects of one kind at a time.
type Pipeline struct {
	logger     *zap.Logger
	catalog    *catalog.Catalog
	layout     staging.Layout
	fileSystem staging.FileSystem
	tag        string
}

// NewPipeline validates options and constructs a Pipeline.
func NewPipeline(logger *zap.Logger, options Options) (*Pipeline, error) {
	tag := strings.TrimSpace(options.Tag)
	if len(tag) == 0 {
		return nil, fmt.Errorf(missingPipelineOptionTemplate, ErrTagNotConfigured)
	}
	if len(options.Layout.Root()) == 0 {
		return nil, fmt.Errorf(missingPipelineOptionTemplate, staging.ErrRootNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := options.FileSystem
	if fileSystem == nil {
		fileSystem = staging.OSFileSystem{}
	}

	return &Pipeline{
		logger:     logger,
		catalog:    catalog.New(options.PageSize),
		layout:     options.Layout,
		fileSystem: fileSystem,
		tag:        tag,
	}, nil
}

// Run downloads every object of kind carrying the tag, streaming one row per object into the
// kind's download log, which is truncated first. Per-object failures are recorded as Error rows
// and never stop the loop; listing and log write failures end the run with an error alongside
// the records produced so far.
func (pipeline *Pipeline) Run(executionContext context.Context, source Source, kind content.Kind) (records []statelog.DownloadRecord, runError error) {
	if source == nil {
		return nil, ErrSourceNotConfigured
	}
	if !kind.Valid() {
		return nil, fmt.Errorf(unsupportedKindTemplateConstant, string(kind))
	}
	if rootError := pipeline.layout.EnsureRoot(pipeline.fileSystem); rootError != nil {
		return nil, fmt.Errorf(stagingRootCreationFailedTemplate, rootError)
	}

	logPath := pipeline.layout.DownloadLogPath(kind)
	logWriter, creationError := statelog.CreateDownloadLog(logPath)
	if creationError != nil {
		return nil, fmt.Errorf(logCreationFailedTemplateConstant, kind, creationError)
	}
	defer func() {
		if closeError := logWriter.Close(); closeError != nil && runError == nil {
			runError = fmt.Errorf(logCloseFailedTemplateConstant, kind, closeError)
		}
	}()

	kindLogger := pipeline.logger.With(zap.String(logFieldKindConstant, string(kind)))
	kindLogger.Info(kindStartedLogMessageConstant, zap.String(logFieldTagConstant, pipeline.tag), zap.String(logFieldLogPathConstant, logPath))

	records = []statelog.DownloadRecord{}
	failures := 0
	sequence := firstSequenceNumberConstant
	for descriptor, listError := range pipeline.catalog.Tagged(executionContext, source, kind, pipeline.tag) {
		if listError != nil {
			return records, fmt.Errorf(listingFailedTemplateConstant, kind, listError)
		}

		record := pipeline.downloadObject(executionContext, source, kind, sequence, descriptor)
		if appendError := logWriter.Append(record); appendError != nil {
			return records, fmt.Errorf(logAppendFailedTemplateConstant, kind, record.ObjectName, appendError)
		}
		records = append(records, record)
		if !record.Succeeded() {
			failures++
		}
		logRecord(kindLogger, record)
		sequence++
	}

	kindLogger.Info(kindCompletedLogMessageConstant, zap.Int(logFieldRecordCountConstant, len(records)), zap.Int(logFieldFailureCountConstant, failures))
	return records, nil
}

func (pipeline *Pipeline) downloadObject(executionContext context.Context, source Source, kind content.Kind, sequence int, descriptor content.ObjectDescriptor) statelog.DownloadRecord {
	record := statelog.DownloadRecord{Item: statelog.Item{
		Sequence:    sequence,
		Kind:        kind,
		ProjectName: descriptor.ProjectNameOrEmpty(),
		ObjectName:  descriptor.Name,
	}}
	if kind == content.KindWorkbook {
		record.Workbook = &statelog.WorkbookState{ShowTabs: descriptor.ShowTabs}
	}

	if !descriptor.HasProjectName() {
		return failed(record, missingProjectNameDetailConstant)
	}

	directory, directoryError := pipeline.layout.EnsureObjectDirectory(pipeline.fileSystem, kind, descriptor.ProjectNameOrEmpty())
	if directoryError != nil {
		return failed(record, downloadErrorDetailPrefixConstant+directoryError.Error())
	}

	stagedPath, downloadError := source.Download(executionContext, kind, descriptor.ID, directory)
	if downloadError != nil {
		return failed(record, downloadErrorDetailPrefixConstant+downloadError.Error())
	}

	if kind == content.KindWorkbook {
		views, viewsError := source.ListWorkbookViews(executionContext, descriptor.ID)
		if viewsError != nil {
			return failed(record, viewListingErrorDetailPrefix+viewsError.Error())
		}
		record.Workbook.VisibleViews = VisibleViewNames(views)
	}

	record.StagedPath = stagedPath
	record.Outcome = statelog.OutcomeSuccess
	record.Detail = fmt.Sprintf(downloadSuccessDetailTemplate, kind.Label(), descriptor.Name, stagedPath)
	return record
}

// VisibleViewNames returns the names of views not flagged hidden, in listing order.
func VisibleViewNames(views []content.View) []string {
	var visible []string
	for _, view := range views {
		if view.Hidden {
			continue
		}
		visible = append(visible, view.Name)
	}
	return visible
}

func failed(record statelog.DownloadRecord, detail string) statelog.DownloadRecord {
	record.StagedPath = ""
	record.Outcome = statelog.OutcomeError
	record.Detail = detail
	return record
}

func logRecord(logger *zap.Logger, record statelog.DownloadRecord) {
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
