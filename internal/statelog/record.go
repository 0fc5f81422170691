package statelog

import (
	"fmt"
	"strings"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	outcomeSuccessValueConstant    = "Success"
	outcomeErrorValueConstant      = "Error"
	unsupportedOutcomeTemplate     = "unsupported response %q"
	rowErrorTemplateConstant       = "state log row %d: %v"
	rowErrorColumnTemplateConstant = "state log row %d column %s: %v"
)

// Outcome is the per-item result recorded in the Response column.
type Outcome string

// Recorded outcomes.
const (
	OutcomeSuccess Outcome = Outcome(outcomeSuccessValueConstant)
	OutcomeError   Outcome = Outcome(outcomeErrorValueConstant)
)

// ParseOutcome accepts Success or Error in any letter case.
func ParseOutcome(value string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case strings.ToLower(outcomeSuccessValueConstant):
		return OutcomeSuccess, nil
	case strings.ToLower(outcomeErrorValueConstant):
		return OutcomeError, nil
	default:
		return "", fmt.Errorf(unsupportedOutcomeTemplate, value)
	}
}

// Item is the row core shared by download and publish logs.
type Item struct {
	Sequence    int          `yaml:"sequence"`
	Kind        content.Kind `yaml:"kind"`
	ProjectName string       `yaml:"project"`
	ObjectName  string       `yaml:"name"`
	StagedPath  string       `yaml:"path"`
	Outcome     Outcome      `yaml:"response"`
	Detail      string       `yaml:"details"`
}

// Succeeded reports whether the item's outcome is Success.
func (item Item) Succeeded() bool {
	return item.Outcome == OutcomeSuccess
}

// WorkbookState is the workbook visibility snapshot taken at download time.
type WorkbookState struct {
	ShowTabs     bool     `yaml:"show_tabs"`
	VisibleViews []string `yaml:"visible_views"`
}

// DownloadRecord is one row of a download log. Workbook is set only for workbooks.
type DownloadRecord struct {
	Item     `yaml:",inline"`
	Workbook *WorkbookState `yaml:"workbook,omitempty"`
}

// WorkbookPublishState is the visibility actually applied on the target.
type WorkbookPublishState struct {
	ShowTabs    bool     `yaml:"show_tabs"`
	HiddenViews []string `yaml:"hidden_views"`
}

// PublishRecord is one row of a publish log. Workbook is set only for workbooks.
type PublishRecord struct {
	Item     `yaml:",inline"`
	Workbook *WorkbookPublishState `yaml:"workbook,omitempty"`
}

// RowError reports a row whose cells could not be decoded. Item holds the cells that were decoded.
type RowError struct {
	Line   int
	Column string
	Item   Item
	Cause  error
}

// Error describes the malformed row.
func (rowError RowError) Error() string {
	if len(rowError.Column) == 0 {
		return fmt.Sprintf(rowErrorTemplateConstant, rowError.Line, rowError.Cause)
	}
	return fmt.Sprintf(rowErrorColumnTemplateConstant, rowError.Line, rowError.Column, rowError.Cause)
}

// Unwrap exposes the decoding failure.
func (rowError RowError) Unwrap() error {
	return rowError.Cause
}
