package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	environmentLookupNilErrorMessageConstant = "environment lookup function not configured"
	fileReaderNilErrorMessageConstant        = "file reader function not configured"
	environmentSecretMissingTemplateConstant = "environment variable %s is not set"
	fileReadErrorTemplateConstant            = "unable to read secret file %s: %w"
	fileSecretEmptyErrorTemplateConstant     = "secret file %s is empty"
	dotenvReadErrorTemplateConstant          = "unable to read dotenv file %s: %w"
)

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FileReader reads the contents of a file path.
type FileReader func(path string) ([]byte, error)

// Resolver turns secret sources into literal values.
type Resolver struct {
	environmentLookup EnvironmentLookup
	fileReader        FileReader
}

// NewResolver creates a Resolver; nil dependencies fall back to the process environment and os.ReadFile.
func NewResolver(environmentLookup EnvironmentLookup, fileReader FileReader) *Resolver {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if fileReader == nil {
		fileReader = os.ReadFile
	}
	return &Resolver{environmentLookup: environmentLookup, fileReader: fileReader}
}

// NewDotenvEnvironmentLookup consults the process environment first and then the variables of the
// dotenv file at dotenvPath. An empty path yields a plain process environment lookup.
func NewDotenvEnvironmentLookup(dotenvPath string) (EnvironmentLookup, error) {
	trimmedPath := strings.TrimSpace(dotenvPath)
	if len(trimmedPath) == 0 {
		return os.LookupEnv, nil
	}

	dotenvValues, readError := godotenv.Read(trimmedPath)
	if readError != nil {
		return nil, fmt.Errorf(dotenvReadErrorTemplateConstant, trimmedPath, readError)
	}

	return func(key string) (string, bool) {
		if value, found := os.LookupEnv(key); found {
			return value, true
		}
		value, found := dotenvValues[key]
		return value, found
	}, nil
}

// ResolveSecret parses sourceValue and returns the secret it points to.
func (resolver *Resolver) ResolveSecret(resolutionContext context.Context, sourceValue string) (string, error) {
	source, parseError := ParseSource(sourceValue)
	if parseError != nil {
		return "", parseError
	}
	return resolver.Resolve(resolutionContext, source)
}

// ResolveValue resolves value when it carries an env: or file: prefix and otherwise returns it trimmed.
func (resolver *Resolver) ResolveValue(resolutionContext context.Context, value string) (string, error) {
	if !IsReference(value) {
		return strings.TrimSpace(value), nil
	}
	return resolver.ResolveSecret(resolutionContext, value)
}

// Resolve reads the secret described by source.
func (resolver *Resolver) Resolve(resolutionContext context.Context, source Source) (string, error) {
	if contextError := resolutionContext.Err(); contextError != nil {
		return "", contextError
	}

	switch source.Type {
	case SourceTypeEnvironment:
		if resolver.environmentLookup == nil {
			return "", errors.New(environmentLookupNilErrorMessageConstant)
		}
		value, found := resolver.environmentLookup(source.Reference)
		trimmedValue := strings.TrimSpace(value)
		if !found || len(trimmedValue) == 0 {
			return "", fmt.Errorf(environmentSecretMissingTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	case SourceTypeFile:
		if resolver.fileReader == nil {
			return "", errors.New(fileReaderNilErrorMessageConstant)
		}
		contents, readError := resolver.fileReader(source.Reference)
		if readError != nil {
			return "", fmt.Errorf(fileReadErrorTemplateConstant, source.Reference, readError)
		}
		trimmedValue := strings.TrimSpace(string(contents))
		if len(trimmedValue) == 0 {
			return "", fmt.Errorf(fileSecretEmptyErrorTemplateConstant, source.Reference)
		}
		return trimmedValue, nil
	default:
		return "", fmt.Errorf(unsupportedSourceTemplateConstant, source.Type)
	}
}
