package utils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tabmigrate/internal/utils"
)

const (
	testEnvironmentPrefixConstant     = "TABMIGRATETEST"
	testConfigurationNameConstant     = "config"
	testConfigurationTypeConstant     = "yaml"
	testConfigurationFileNameConstant = "config.yaml"
	testEmbeddedConfigurationConstant = "migration:\n  tag: embedded\n  request_timeout: 1m\n  kinds: [flow, workbook]\n"
)

type loaderFixture struct {
	Migration loaderMigrationFixture `mapstructure:"migration"`
}

type loaderMigrationFixture struct {
	Tag            string        `mapstructure:"tag"`
	StagingRoot    string        `mapstructure:"staging_root"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Kinds          []string      `mapstructure:"kinds"`
}

func writeConfigurationFile(testInstance *testing.T, directory string, content string) string {
	testInstance.Helper()
	configurationPath := filepath.Join(directory, testConfigurationFileNameConstant)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(content), 0o600))
	return configurationPath
}

func TestConfigurationLoaderLayering(testInstance *testing.T) {
	testCases := []struct {
		name                string
		fileContent         string
		environment         map[string]string
		expectedTag         string
		expectedStagingRoot string
		expectedTimeout     time.Duration
		expectedKinds       []string
	}{
		{
			name:                "defaults_below_embedded",
			expectedTag:         "embedded",
			expectedStagingRoot: "/default/root",
			expectedTimeout:     time.Minute,
			expectedKinds:       []string{"flow", "workbook"},
		},
		{
			name:                "file_overrides_embedded",
			fileContent:         "migration:\n  tag: from-file\n  request_timeout: 45s\n",
			expectedTag:         "from-file",
			expectedStagingRoot: "/default/root",
			expectedTimeout:     45 * time.Second,
			expectedKinds:       []string{"flow", "workbook"},
		},
		{
			name:        "environment_overrides_file",
			fileContent: "migration:\n  tag: from-file\n",
			environment: map[string]string{
				testEnvironmentPrefixConstant + "_MIGRATION_TAG":          "from-env",
				testEnvironmentPrefixConstant + "_MIGRATION_STAGING_ROOT": "/env/root",
				testEnvironmentPrefixConstant + "_MIGRATION_KINDS":        "datasource,flow",
			},
			expectedTag:         "from-env",
			expectedStagingRoot: "/env/root",
			expectedTimeout:     time.Minute,
			expectedKinds:       []string{"datasource", "flow"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			for key, value := range testCase.environment {
				testInstance.Setenv(key, value)
			}

			configurationDirectory := testInstance.TempDir()
			configurationPath := ""
			if len(testCase.fileContent) > 0 {
				configurationPath = writeConfigurationFile(testInstance, configurationDirectory, testCase.fileContent)
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)
			loader.SetEmbeddedConfiguration([]byte(testEmbeddedConfigurationConstant), testConfigurationTypeConstant)

			var loaded loaderFixture
			metadata, loadError := loader.LoadConfiguration(configurationPath, map[string]any{
				"migration.tag":          "default",
				"migration.staging_root": "/default/root",
			}, &loaded)
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedTag, loaded.Migration.Tag)
			require.Equal(testInstance, testCase.expectedStagingRoot, loaded.Migration.StagingRoot)
			require.Equal(testInstance, testCase.expectedTimeout, loaded.Migration.RequestTimeout)
			require.Equal(testInstance, testCase.expectedKinds, loaded.Migration.Kinds)
			require.Equal(testInstance, configurationPath, metadata.ConfigFileUsed)
		})
	}
}

func TestConfigurationLoaderSearchesPaths(testInstance *testing.T) {
	emptyDirectory := testInstance.TempDir()
	configurationDirectory := testInstance.TempDir()
	configurationPath := writeConfigurationFile(testInstance, configurationDirectory, "migration:\n  tag: discovered\n")

	loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{emptyDirectory, configurationDirectory})

	var loaded loaderFixture
	metadata, loadError := loader.LoadConfiguration("", nil, &loaded)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "discovered", loaded.Migration.Tag)
	require.Equal(testInstance, configurationPath, metadata.ConfigFileUsed)
}

func TestConfigurationLoaderErrors(testInstance *testing.T) {
	testCases := []struct {
		name         string
		embedded     string
		fileContent  string
		explicitPath string
	}{
		{name: "missing_explicit_file", explicitPath: filepath.Join(testInstance.TempDir(), "absent.yaml")},
		{name: "malformed_file", fileContent: "migration: [unterminated\n"},
		{name: "malformed_embedded", embedded: "\tmigration: tabs\n"},
		{name: "invalid_duration", fileContent: "migration:\n  request_timeout: soon\n"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configurationPath := testCase.explicitPath
			if len(testCase.fileContent) > 0 {
				configurationPath = writeConfigurationFile(testInstance, testInstance.TempDir(), testCase.fileContent)
			}

			loader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)
			loader.SetEmbeddedConfiguration([]byte(testCase.embedded), testConfigurationTypeConstant)

			var loaded loaderFixture
			_, loadError := loader.LoadConfiguration(configurationPath, nil, &loaded)
			require.Error(testInstance, loadError)
		})
	}
}
