// Package staging maps content kinds and projects onto the filesystem tree
// that holds downloaded artifacts and state logs.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	scratchDirectoryNameConstant     = "_temp"
	stateLogExtensionConstant        = ".csv"
	publishLogSuffixConstant         = "_publish"
	tildeSymbolConstant              = "~"
	forwardSlashSeparatorConstant    = "/"
	backslashSeparatorConstant       = `\`
	separatorReplacementConstant     = "_"
	currentDirectoryNameConstant     = "."
	parentDirectoryNameConstant      = ".."
	directoryPermissionsConstant     = os.FileMode(0o755)
	missingRootMessageConstant       = "staging root must be provided"
	missingProjectMessageConstant    = "project name must be provided"
	homeDirectoryUnavailableTemplate = "unable to resolve home directory: %w"
	absoluteRootUnavailableTemplate  = "unable to resolve staging root %s: %w"
	directoryCreationFailedTemplate  = "unable to create directory %s: %w"
	unsupportedKindTemplate          = "unsupported content kind %q"
)

// ErrRootNotConfigured indicates an empty staging root.
var ErrRootNotConfigured = errors.New(missingRootMessageConstant)

// ErrProjectNameMissing indicates an empty project name.
var ErrProjectNameMissing = errors.New(missingProjectMessageConstant)

// HomeDirectoryProvider resolves the current user's home directory.
type HomeDirectoryProvider func() (string, error)

// FileSystem creates directories.
type FileSystem interface {
	MkdirAll(path string, permissions os.FileMode) error
}

// OSFileSystem creates directories on the local disk.
type OSFileSystem struct{}

// MkdirAll delegates to os.MkdirAll.
func (OSFileSystem) MkdirAll(path string, permissions os.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// Layout resolves every staging path below one root.
type Layout struct {
	root string
}

// NewLayout expands a leading tilde in root and returns a Layout anchored at the absolute result.
func NewLayout(root string, homeDirectoryProvider HomeDirectoryProvider) (Layout, error) {
	trimmedRoot := strings.TrimSpace(root)
	if len(trimmedRoot) == 0 {
		return Layout{}, ErrRootNotConfigured
	}
	if homeDirectoryProvider == nil {
		homeDirectoryProvider = os.UserHomeDir
	}

	expandedRoot, expansionError := expandHome(trimmedRoot, homeDirectoryProvider)
	if expansionError != nil {
		return Layout{}, expansionError
	}

	absoluteRoot, absoluteError := filepath.Abs(expandedRoot)
	if absoluteError != nil {
		return Layout{}, fmt.Errorf(absoluteRootUnavailableTemplate, expandedRoot, absoluteError)
	}
	return Layout{root: absoluteRoot}, nil
}

// Root returns the absolute staging root.
func (layout Layout) Root() string {
	return layout.root
}

// KindDirectory returns <root>/<kind>.
func (layout Layout) KindDirectory(kind content.Kind) string {
	return filepath.Join(layout.root, kind.DirectoryName())
}

// ObjectDirectory returns <root>/<kind>/<project>. Path separators inside the project name are replaced
// so every project maps to exactly one directory below the kind directory.
func (layout Layout) ObjectDirectory(kind content.Kind, projectName string) string {
	return filepath.Join(layout.KindDirectory(kind), projectDirectoryName(projectName))
}

// DownloadLogPath returns <root>/<kinds>.csv.
func (layout Layout) DownloadLogPath(kind content.Kind) string {
	return filepath.Join(layout.root, kind.LogBaseName()+stateLogExtensionConstant)
}

// PublishLogPath returns <root>/<kinds>_publish.csv.
func (layout Layout) PublishLogPath(kind content.Kind) string {
	return filepath.Join(layout.root, kind.LogBaseName()+publishLogSuffixConstant+stateLogExtensionConstant)
}

// ScratchDirectory returns <root>/_temp.
func (layout Layout) ScratchDirectory() string {
	return filepath.Join(layout.root, scratchDirectoryNameConstant)
}

// EnsureObjectDirectory creates <root>/<kind>/<project> when absent and returns it.
func (layout Layout) EnsureObjectDirectory(fileSystem FileSystem, kind content.Kind, projectName string) (string, error) {
	if len(strings.TrimSpace(projectName)) == 0 {
		return "", ErrProjectNameMissing
	}
	if !kind.Valid() {
		return "", fmt.Errorf(unsupportedKindTemplate, string(kind))
	}
	return ensureDirectory(fileSystem, layout.ObjectDirectory(kind, projectName))
}

// EnsureRoot creates the staging root when absent.
func (layout Layout) EnsureRoot(fileSystem FileSystem) error {
	_, creationError := ensureDirectory(fileSystem, layout.root)
	return creationError
}

// EnsureScratchDirectory creates <root>/_temp when absent and returns it.
func (layout Layout) EnsureScratchDirectory(fileSystem FileSystem) (string, error) {
	return ensureDirectory(fileSystem, layout.ScratchDirectory())
}

func ensureDirectory(fileSystem FileSystem, directory string) (string, error) {
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	if creationError := fileSystem.MkdirAll(directory, directoryPermissionsConstant); creationError != nil {
		return "", fmt.Errorf(directoryCreationFailedTemplate, directory, creationError)
	}
	return directory, nil
}

func projectDirectoryName(projectName string) string {
	sanitized := strings.ReplaceAll(projectName, forwardSlashSeparatorConstant, separatorReplacementConstant)
	sanitized = strings.ReplaceAll(sanitized, backslashSeparatorConstant, separatorReplacementConstant)
	if sanitized == currentDirectoryNameConstant || sanitized == parentDirectoryNameConstant || len(sanitized) == 0 {
		return separatorReplacementConstant
	}
	return sanitized
}

func expandHome(candidatePath string, homeDirectoryProvider HomeDirectoryProvider) (string, error) {
	if candidatePath != tildeSymbolConstant &&
		!strings.HasPrefix(candidatePath, tildeSymbolConstant+forwardSlashSeparatorConstant) &&
		!strings.HasPrefix(candidatePath, tildeSymbolConstant+string(os.PathSeparator)) {
		return candidatePath, nil
	}

	homeDirectory, homeError := homeDirectoryProvider()
	if homeError != nil {
		return "", fmt.Errorf(homeDirectoryUnavailableTemplate, homeError)
	}
	return filepath.Join(homeDirectory, candidatePath[len(tildeSymbolConstant):]), nil
}
