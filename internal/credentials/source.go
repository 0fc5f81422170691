package credentials

import (
	"errors"
	"fmt"
	"strings"
)

const (
	sourceSeparatorConstant                    = ":"
	environmentSourceTypeValueConstant         = "env"
	fileSourceTypeValueConstant                = "file"
	sourceMissingErrorMessageConstant          = "secret source must be provided"
	environmentNameMissingErrorMessageConstant = "environment variable name must be provided"
	filePathMissingErrorMessageConstant        = "secret file path must be provided"
	unsupportedSourceTemplateConstant          = "unsupported secret source type %q"
)

// SourceType enumerates the supported secret retrieval mechanisms.
type SourceType string

// Secret source types.
const (
	SourceTypeEnvironment SourceType = SourceType(environmentSourceTypeValueConstant)
	SourceTypeFile        SourceType = SourceType(fileSourceTypeValueConstant)
)

// Source specifies where a secret is read from.
type Source struct {
	Type      SourceType
	Reference string
}

// ParseSource interprets env:NAME, file:/path, or a bare environment variable name.
func ParseSource(sourceValue string) (Source, error) {
	trimmedValue := strings.TrimSpace(sourceValue)
	if len(trimmedValue) == 0 {
		return Source{}, errors.New(sourceMissingErrorMessageConstant)
	}

	sourceType, reference, separated := strings.Cut(trimmedValue, sourceSeparatorConstant)
	if !separated {
		return Source{Type: SourceTypeEnvironment, Reference: trimmedValue}, nil
	}

	reference = strings.TrimSpace(reference)
	switch strings.ToLower(strings.TrimSpace(sourceType)) {
	case environmentSourceTypeValueConstant:
		if len(reference) == 0 {
			return Source{}, errors.New(environmentNameMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeEnvironment, Reference: reference}, nil
	case fileSourceTypeValueConstant:
		if len(reference) == 0 {
			return Source{}, errors.New(filePathMissingErrorMessageConstant)
		}
		return Source{Type: SourceTypeFile, Reference: reference}, nil
	default:
		return Source{}, fmt.Errorf(unsupportedSourceTemplateConstant, sourceType)
	}
}

// IsReference reports whether value carries an explicit env: or file: prefix.
func IsReference(value string) bool {
	sourceType, _, separated := strings.Cut(strings.TrimSpace(value), sourceSeparatorConstant)
	if !separated {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sourceType)) {
	case environmentSourceTypeValueConstant, fileSourceTypeValueConstant:
		return true
	default:
		return false
	}
}
