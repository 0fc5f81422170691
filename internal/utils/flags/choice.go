// Package flags provides Cobra flag values shared by the migration commands.
package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	choicePlaceholderPrefix    = "<"
	choicePlaceholderSuffix    = ">"
	choiceSeparatorLiteral     = "|"
	choiceTypeName             = "choice"
	choiceUsageEmptyTemplate   = "`%s`"
	choiceUsageFullTemplate    = "`%s` %s"
	invalidChoiceErrorTemplate = "must be one of %s"
	choiceListSeparatorLiteral = ", "
	choiceNormalizationCutset  = " \t"
)

// Choice is a pflag.Value restricted to a fixed, case-insensitive set of options.
type Choice struct {
	value   string
	choices []string
}

// NewChoice returns a Choice holding defaultChoice. Empty and repeated options are dropped.
func NewChoice(defaultChoice string, choices []string) *Choice {
	return &Choice{value: normalizeChoice(defaultChoice), choices: uniqueChoices(choices)}
}

// String returns the selected option.
func (choice *Choice) String() string {
	if choice == nil {
		return ""
	}
	return choice.value
}

// Set selects value when it names one of the options.
func (choice *Choice) Set(value string) error {
	normalized := normalizeChoice(value)
	for _, option := range choice.choices {
		if option == normalized {
			choice.value = normalized
			return nil
		}
	}
	return fmt.Errorf(invalidChoiceErrorTemplate, strings.Join(choice.choices, choiceListSeparatorLiteral))
}

// Type names the value kind shown in help output.
func (choice *Choice) Type() string {
	return choiceTypeName
}

// Usage renders the options with the default capitalized, followed by description.
func (choice *Choice) Usage(description string) string {
	return FormatChoiceUsage(choice.value, choice.choices, description)
}

var _ pflag.Value = (*Choice)(nil)

// FormatChoiceUsage builds a usage string where the default option is capitalized inside a placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	normalizedDefault := normalizeChoice(defaultChoice)
	rendered := uniqueChoices(choices)
	for index, option := range rendered {
		if option == normalizedDefault {
			rendered[index] = strings.ToUpper(option)
		}
	}

	placeholder := choicePlaceholderPrefix + strings.Join(rendered, choiceSeparatorLiteral) + choicePlaceholderSuffix
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(choiceUsageFullTemplate, placeholder, description)
}

func normalizeChoice(value string) string {
	return strings.ToLower(strings.Trim(value, choiceNormalizationCutset))
}

func uniqueChoices(choices []string) []string {
	unique := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))
	for _, option := range choices {
		normalized := normalizeChoice(option)
		if len(normalized) == 0 {
			continue
		}
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		unique = append(unique, normalized)
	}
	return unique
}
