package migration

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	reportFormatSummaryConstant     = "summary"
	reportFormatYAMLConstant        = "yaml"
	yamlIndentationConstant         = 2
	summaryRunLineTemplateConstant  = "run %s\n"
	summaryKindLineTemplateConstant = "%s %s: %d succeeded, %d failed\n"
	summaryFailureTemplateConstant  = "%s failed: %s\n"
	unsupportedReportFormatTemplate = "unsupported report format %q"
)

// ReportFormat selects how a RunReport is printed.
type ReportFormat string

// Supported report formats.
const (
	ReportFormatSummary ReportFormat = ReportFormat(reportFormatSummaryConstant)
	ReportFormatYAML    ReportFormat = ReportFormat(reportFormatYAMLConstant)
)

// ReportFormats lists the accepted report formats, default first.
func ReportFormats() []string {
	return []string{reportFormatSummaryConstant, reportFormatYAMLConstant}
}

// ParseReportFormat normalizes a report format name.
func ParseReportFormat(value string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", ReportFormatSummary:
		return ReportFormatSummary, nil
	case ReportFormatYAML:
		return ReportFormatYAML, nil
	default:
		return "", fmt.Errorf(unsupportedReportFormatTemplate, value)
	}
}

// RunReport collects the phase results of one invocation.
type RunReport struct {
	RunIdentifier string        `yaml:"run_id"`
	Phases        []PhaseResult `yaml:"phases"`
}

// StatusCode is 1 when any phase failed fatally and 0 otherwise.
func (report RunReport) StatusCode() StatusCode {
	for _, phase := range report.Phases {
		if !phase.Succeeded() {
			return StatusCodeFailure
		}
	}
	return StatusCodeSuccess
}

// Err joins the errors of the failed phases.
func (report RunReport) Err() error {
	var phaseErrors []error
	for _, phase := range report.Phases {
		if phaseError := phase.Err(); phaseError != nil {
			phaseErrors = append(phaseErrors, phaseError)
		}
	}
	return errors.Join(phaseErrors...)
}

// WriteReport prints report in format.
func WriteReport(output io.Writer, report RunReport, format ReportFormat) error {
	switch format {
	case ReportFormatYAML:
		encoder := yaml.NewEncoder(output)
		encoder.SetIndent(yamlIndentationConstant)
		if encodingError := encoder.Encode(report); encodingError != nil {
			return encodingError
		}
		return encoder.Close()
	case ReportFormatSummary, "":
		return writeSummary(output, report)
	default:
		return fmt.Errorf(unsupportedReportFormatTemplate, format)
	}
}

func writeSummary(output io.Writer, report RunReport) error {
	if _, writeError := fmt.Fprintf(output, summaryRunLineTemplateConstant, report.RunIdentifier); writeError != nil {
		return writeError
	}
	for _, phase := range report.Phases {
		for _, summary := range phase.Summaries {
			if _, writeError := fmt.Fprintf(output, summaryKindLineTemplateConstant, phase.Phase, summary.Kind, summary.Succeeded, summary.Failed); writeError != nil {
				return writeError
			}
		}
		if !phase.Succeeded() {
			if _, writeError := fmt.Fprintf(output, summaryFailureTemplateConstant, phase.Phase, phase.Message); writeError != nil {
				return writeError
			}
		}
	}
	return nil
}
