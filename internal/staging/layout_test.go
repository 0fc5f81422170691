package staging_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/staging"
)

type recordingFileSystem struct {
	createdDirectories []string
	failure            error
}

func (fileSystem *recordingFileSystem) MkdirAll(path string, _ os.FileMode) error {
	fileSystem.createdDirectories = append(fileSystem.createdDirectories, path)
	return fileSystem.failure
}

func TestNewLayoutResolvesRoot(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	homeProvider := func() (string, error) { return homeDirectory, nil }

	testCases := []struct {
		name         string
		root         string
		provider     staging.HomeDirectoryProvider
		expectedRoot string
		expectedErr  error
		expectError  bool
	}{
		{name: "tilde_prefix", root: "~/migration", provider: homeProvider, expectedRoot: filepath.Join(homeDirectory, "migration")},
		{name: "bare_tilde", root: "~", provider: homeProvider, expectedRoot: homeDirectory},
		{name: "absolute", root: homeDirectory + "/staging/", provider: homeProvider, expectedRoot: filepath.Join(homeDirectory, "staging")},
		{name: "tilde_user_untouched", root: filepath.Join(homeDirectory, "~other"), provider: homeProvider, expectedRoot: filepath.Join(homeDirectory, "~other")},
		{name: "empty", root: "  ", provider: homeProvider, expectedErr: staging.ErrRootNotConfigured, expectError: true},
		{name: "home_unavailable", root: "~/migration", provider: func() (string, error) { return "", errors.New("no home") }, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			layout, layoutError := staging.NewLayout(testCase.root, testCase.provider)
			if testCase.expectError {
				require.Error(testInstance, layoutError)
				if testCase.expectedErr != nil {
					require.ErrorIs(testInstance, layoutError, testCase.expectedErr)
				}
				return
			}
			require.NoError(testInstance, layoutError)
			require.Equal(testInstance, testCase.expectedRoot, layout.Root())
		})
	}
}

func TestLayoutPaths(testInstance *testing.T) {
	root := testInstance.TempDir()
	layout, layoutError := staging.NewLayout(root, nil)
	require.NoError(testInstance, layoutError)

	require.Equal(testInstance, filepath.Join(root, "flow", "Finance"), layout.ObjectDirectory(content.KindFlow, "Finance"))
	require.Equal(testInstance, filepath.Join(root, "workbook", "Sales_EMEA"), layout.ObjectDirectory(content.KindWorkbook, "Sales/EMEA"))
	require.Equal(testInstance, filepath.Join(root, "datasource", "_"), layout.ObjectDirectory(content.KindDatasource, ".."))
	require.Equal(testInstance, filepath.Join(root, "flows.csv"), layout.DownloadLogPath(content.KindFlow))
	require.Equal(testInstance, filepath.Join(root, "datasources.csv"), layout.DownloadLogPath(content.KindDatasource))
	require.Equal(testInstance, filepath.Join(root, "workbooks_publish.csv"), layout.PublishLogPath(content.KindWorkbook))
	require.Equal(testInstance, filepath.Join(root, "_temp"), layout.ScratchDirectory())
}

func TestEnsureObjectDirectoryIsIdempotent(testInstance *testing.T) {
	root := testInstance.TempDir()
	layout, layoutError := staging.NewLayout(root, nil)
	require.NoError(testInstance, layoutError)

	for attempt := 0; attempt < 2; attempt++ {
		directory, ensureError := layout.EnsureObjectDirectory(staging.OSFileSystem{}, content.KindWorkbook, "Finance")
		require.NoError(testInstance, ensureError)
		require.DirExists(testInstance, directory)
	}

	scratch, scratchError := layout.EnsureScratchDirectory(nil)
	require.NoError(testInstance, scratchError)
	require.DirExists(testInstance, scratch)
}

func TestEnsureObjectDirectoryValidation(testInstance *testing.T) {
	layout, layoutError := staging.NewLayout(testInstance.TempDir(), nil)
	require.NoError(testInstance, layoutError)

	testCases := []struct {
		name        string
		kind        content.Kind
		project     string
		fileSystem  *recordingFileSystem
		expectedErr error
	}{
		{name: "missing_project", kind: content.KindFlow, project: " ", fileSystem: &recordingFileSystem{}, expectedErr: staging.ErrProjectNameMissing},
		{name: "unsupported_kind", kind: content.Kind("sheet"), project: "Finance", fileSystem: &recordingFileSystem{}},
		{name: "filesystem_failure", kind: content.KindFlow, project: "Finance", fileSystem: &recordingFileSystem{failure: os.ErrPermission}, expectedErr: os.ErrPermission},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			directory, ensureError := layout.EnsureObjectDirectory(testCase.fileSystem, testCase.kind, testCase.project)
			require.Error(testInstance, ensureError)
			require.Empty(testInstance, directory)
			if testCase.expectedErr != nil {
				require.ErrorIs(testInstance, ensureError, testCase.expectedErr)
			}
		})
	}
}
