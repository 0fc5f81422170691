package content_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tabmigrate/internal/content"
)

func TestParseKind(testInstance *testing.T) {
	testCases := []struct {
		name          string
		value         string
		expectedKind  content.Kind
		expectedError bool
	}{
		{name: "lowercase_flow", value: "flow", expectedKind: content.KindFlow},
		{name: "capitalized_workbook", value: " Workbook ", expectedKind: content.KindWorkbook},
		{name: "datasource", value: "DATASOURCE", expectedKind: content.KindDatasource},
		{name: "empty", value: "  ", expectedError: true},
		{name: "unknown", value: "view", expectedError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			kind, parseError := content.ParseKind(testCase.value)
			if testCase.expectedError {
				require.Error(subTest, parseError)
				return
			}
			require.NoError(subTest, parseError)
			require.Equal(subTest, testCase.expectedKind, kind)
		})
	}
}

func TestKindNaming(testInstance *testing.T) {
	require.Equal(testInstance, []content.Kind{content.KindFlow, content.KindDatasource, content.KindWorkbook}, content.OrderedKinds())

	require.Equal(testInstance, "Flow", content.KindFlow.Label())
	require.Equal(testInstance, "datasources", content.KindDatasource.LogBaseName())
	require.Equal(testInstance, "workbook", content.KindWorkbook.DirectoryName())
}

func TestObjectDescriptorHelpers(testInstance *testing.T) {
	descriptor := content.ObjectDescriptor{Name: "Revenue", Tags: []string{"migrate", "finance"}}
	require.False(testInstance, descriptor.HasProjectName())
	require.Empty(testInstance, descriptor.ProjectNameOrEmpty())
	require.True(testInstance, descriptor.HasTag("migrate"))
	require.False(testInstance, descriptor.HasTag("Migrate"))

	descriptor.ProjectName = content.StringPointer("Finance")
	require.True(testInstance, descriptor.HasProjectName())
	require.Equal(testInstance, "Finance", descriptor.ProjectNameOrEmpty())
}
