package content

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	kindFlowValueConstant              = "flow"
	kindDatasourceValueConstant        = "datasource"
	kindWorkbookValueConstant          = "workbook"
	kindFlowLabelConstant              = "Flow"
	kindDatasourceLabelConstant        = "Datasource"
	kindWorkbookLabelConstant          = "Workbook"
	kindFlowLogBaseNameConstant        = "flows"
	kindDatasourceLogBaseNameConstant  = "datasources"
	kindWorkbookLogBaseNameConstant    = "workbooks"
	unsupportedKindErrorTemplate       = "unsupported content kind %q"
	kindParseEmptyValueMessageConstant = "content kind must be provided"
)

// Kind identifies a migratable server-side content type.
type Kind string

// Supported content kinds.
const (
	KindFlow       Kind = Kind(kindFlowValueConstant)
	KindDatasource Kind = Kind(kindDatasourceValueConstant)
	KindWorkbook   Kind = Kind(kindWorkbookValueConstant)
)

// OrderedKinds returns the kinds in processing order: flows, datasources, workbooks.
func OrderedKinds() []Kind {
	return []Kind{KindFlow, KindDatasource, KindWorkbook}
}

// ParseKind normalizes textual kind values such as "flow" or "Workbook".
func ParseKind(value string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if len(normalized) == 0 {
		return "", errors.New(kindParseEmptyValueMessageConstant)
	}
	candidate := Kind(normalized)
	if !candidate.Valid() {
		return "", fmt.Errorf(unsupportedKindErrorTemplate, value)
	}
	return candidate, nil
}

// Valid reports whether kind is one of the supported kinds.
func (kind Kind) Valid() bool {
	return slices.Contains(OrderedKinds(), kind)
}

// Label returns the capitalized type name written to state logs.
func (kind Kind) Label() string {
	switch kind {
	case KindFlow:
		return kindFlowLabelConstant
	case KindDatasource:
		return kindDatasourceLabelConstant
	case KindWorkbook:
		return kindWorkbookLabelConstant
	default:
		return string(kind)
	}
}

// DirectoryName returns the staging subdirectory used for the kind.
func (kind Kind) DirectoryName() string {
	return string(kind)
}

// LogBaseName returns the plural base name of the kind's state log files.
func (kind Kind) LogBaseName() string {
	switch kind {
	case KindFlow:
		return kindFlowLogBaseNameConstant
	case KindDatasource:
		return kindDatasourceLogBaseNameConstant
	case KindWorkbook:
		return kindWorkbookLogBaseNameConstant
	default:
		return string(kind) + "s"
	}
}

// ObjectDescriptor describes a listed server object.
type ObjectDescriptor struct {
	ID          string
	Name        string
	ProjectID   string
	ProjectName *string
	Tags        []string
	ShowTabs    bool
	WebpageURL  string
}

// HasProjectName reports whether the owning project name is known.
func (descriptor ObjectDescriptor) HasProjectName() bool {
	return descriptor.ProjectName != nil
}

// ProjectNameOrEmpty returns the project name, or an empty string when unknown.
func (descriptor ObjectDescriptor) ProjectNameOrEmpty() string {
	if descriptor.ProjectName == nil {
		return ""
	}
	return *descriptor.ProjectName
}

// HasTag reports whether the descriptor carries the exact tag label.
func (descriptor ObjectDescriptor) HasTag(tag string) bool {
	return slices.Contains(descriptor.Tags, tag)
}

// View is a sheet or dashboard inside a workbook.
type View struct {
	ID     string
	Name   string
	Hidden bool
}

// Project is a container for content on a site.
type Project struct {
	ID   string
	Name string
}

// PublishRequest describes one upload of a staged artifact.
type PublishRequest struct {
	Kind                Kind
	Name                string
	ProjectID           string
	FilePath            string
	Overwrite           bool
	ShowTabs            bool
	HiddenViews         []string
	SkipConnectionCheck bool
}

// PublishedObject is the server's view of a freshly published object.
type PublishedObject struct {
	ID         string
	Name       string
	WebpageURL string
}

// StringPointer returns a pointer to a copy of value.
func StringPointer(value string) *string {
	return &value
}
