package serverclient_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/pagination"
	"github.com/temirov/tabmigrate/internal/serverclient"
	"github.com/temirov/tabmigrate/internal/serverclient/servertest"
)

const (
	testSiteConstant            = "finance-site"
	testUserNameConstant        = "migrator"
	testSecretConstant          = "hunter2"
	testProjectNameConstant     = "Finance"
	testMigrationTagConstant    = "migrate"
	testWorkbookNameConstant    = "Quarterly"
	testFlowNameConstant        = "Cleanup"
	testArtifactContentConstant = "packaged-content"
)

func newTestServer(testInstance *testing.T, personalAccessToken bool) *servertest.Server {
	testInstance.Helper()
	return servertest.New(testInstance, servertest.Options{
		SiteContentURL:      testSiteConstant,
		Name:                testUserNameConstant,
		Secret:              testSecretConstant,
		PersonalAccessToken: personalAccessToken,
	})
}

func newTestClient(testInstance *testing.T, address string) *serverclient.Client {
	testInstance.Helper()
	client, creationError := serverclient.NewClient(nil, nil, serverclient.Configuration{
		Address:       address,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	})
	require.NoError(testInstance, creationError)
	return client
}

func signIn(testInstance *testing.T, server *servertest.Server) *serverclient.Session {
	testInstance.Helper()
	client := newTestClient(testInstance, server.URL())
	session, signInError := client.SignIn(context.Background(), serverclient.SignInRequest{
		Site:   testSiteConstant,
		Name:   testUserNameConstant,
		Secret: testSecretConstant,
	})
	require.NoError(testInstance, signInError)
	testInstance.Cleanup(func() { _ = session.SignOut(context.Background()) })
	return session
}

func writeArtifact(testInstance *testing.T, fileName string) string {
	testInstance.Helper()
	artifactPath := filepath.Join(testInstance.TempDir(), fileName)
	require.NoError(testInstance, os.WriteFile(artifactPath, []byte(testArtifactContentConstant), 0o600))
	return artifactPath
}

func TestNewClientValidation(testInstance *testing.T) {
	testCases := []struct {
		name    string
		address string
	}{
		{name: "empty_address", address: "  "},
		{name: "relative_address", address: "analytics.example.com"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			client, creationError := serverclient.NewClient(nil, nil, serverclient.Configuration{Address: testCase.address})
			require.Error(testInstance, creationError)
			require.ErrorAs(testInstance, creationError, &serverclient.InvalidInputError{})
			require.Nil(testInstance, client)
		})
	}
}

func TestSignInSelectsCredentialPair(testInstance *testing.T) {
	testCases := []struct {
		name                string
		serverExpectsToken  bool
		personalAccessToken bool
		expectError         bool
	}{
		{name: "password_accepted", serverExpectsToken: false, personalAccessToken: false},
		{name: "token_accepted", serverExpectsToken: true, personalAccessToken: true},
		{name: "token_sent_to_password_server", serverExpectsToken: false, personalAccessToken: true, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := newTestServer(testInstance, testCase.serverExpectsToken)
			client := newTestClient(testInstance, server.URL())

			session, signInError := client.SignIn(context.Background(), serverclient.SignInRequest{
				Site:                testSiteConstant,
				Name:                testUserNameConstant,
				Secret:              testSecretConstant,
				PersonalAccessToken: testCase.personalAccessToken,
			})
			if testCase.expectError {
				require.Error(testInstance, signInError)
				var statusError serverclient.StatusError
				require.ErrorAs(testInstance, signInError, &statusError)
				require.Equal(testInstance, 401, statusError.StatusCode)
				require.False(testInstance, statusError.Retryable())
				return
			}

			require.NoError(testInstance, signInError)
			require.Equal(testInstance, server.SiteID(), session.SiteID())
			require.Equal(testInstance, 1, server.ActiveSessions())

			require.NoError(testInstance, session.SignOut(context.Background()))
			require.NoError(testInstance, session.SignOut(context.Background()))
			require.Equal(testInstance, 0, server.ActiveSessions())
			require.Equal(testInstance, 1, server.SignOutCount())
		})
	}
}

func TestSignInValidatesCredentials(testInstance *testing.T) {
	client := newTestClient(testInstance, "https://analytics.example.com")
	_, signInError := client.SignIn(context.Background(), serverclient.SignInRequest{Site: testSiteConstant, Secret: testSecretConstant})
	require.ErrorAs(testInstance, signInError, &serverclient.InvalidInputError{})

	_, signInError = client.SignIn(context.Background(), serverclient.SignInRequest{Site: testSiteConstant, Name: testUserNameConstant})
	require.ErrorAs(testInstance, signInError, &serverclient.InvalidInputError{})
}

func TestListObjectsPaginatesAndDecodesDescriptors(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	projectIdentifier := server.AddProject(testProjectNameConstant)
	hiddenTabs := false
	server.AddObject(content.KindWorkbook, servertest.Object{Name: "First", ProjectID: projectIdentifier, Tags: []string{testMigrationTagConstant}, ShowTabs: &hiddenTabs})
	server.AddObject(content.KindWorkbook, servertest.Object{Name: "Second", ProjectID: projectIdentifier})
	session := signIn(testInstance, server)

	firstPage, firstError := session.ListObjects(context.Background(), content.KindWorkbook, pagination.PageRequest{PageNumber: 1, PageSize: 1})
	require.NoError(testInstance, firstError)
	require.Len(testInstance, firstPage, 1)
	require.Equal(testInstance, "First", firstPage[0].Name)
	require.Equal(testInstance, testProjectNameConstant, firstPage[0].ProjectNameOrEmpty())
	require.True(testInstance, firstPage[0].HasTag(testMigrationTagConstant))
	require.False(testInstance, firstPage[0].ShowTabs)

	secondPage, secondError := session.ListObjects(context.Background(), content.KindWorkbook, pagination.PageRequest{PageNumber: 2, PageSize: 1})
	require.NoError(testInstance, secondError)
	require.Len(testInstance, secondPage, 1)
	require.Equal(testInstance, "Second", secondPage[0].Name)
	require.True(testInstance, secondPage[0].ShowTabs)
	require.False(testInstance, secondPage[0].HasTag(testMigrationTagConstant))

	thirdPage, thirdError := session.ListObjects(context.Background(), content.KindWorkbook, pagination.PageRequest{PageNumber: 3, PageSize: 1})
	require.NoError(testInstance, thirdError)
	require.Empty(testInstance, thirdPage)
}

func TestListObjectsLeavesUnknownProjectNameAbsent(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	server.AddObject(content.KindFlow, servertest.Object{Name: testFlowNameConstant, ProjectID: "orphaned"})
	session := signIn(testInstance, server)

	descriptors, listError := session.ListObjects(context.Background(), content.KindFlow, pagination.PageRequest{PageNumber: 1, PageSize: 10})
	require.NoError(testInstance, listError)
	require.Len(testInstance, descriptors, 1)
	require.False(testInstance, descriptors[0].HasProjectName())
}

func TestListProjectsRetriesThrottledRequests(testInstance *testing.T) {
	testCases := []struct {
		name            string
		throttledCount  int
		expectError     bool
		expectedEntries int
	}{
		{name: "recovers_after_two_throttles", throttledCount: 2, expectedEntries: 1},
		{name: "gives_up_after_attempts", throttledCount: 5, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := newTestServer(testInstance, false)
			server.AddProject(testProjectNameConstant)
			session := signIn(testInstance, server)

			server.ThrottleNextRequests(testCase.throttledCount)
			projects, listError := session.ListProjects(context.Background(), pagination.PageRequest{PageNumber: 1, PageSize: 10})
			server.ThrottleNextRequests(0)
			if testCase.expectError {
				var statusError serverclient.StatusError
				require.ErrorAs(testInstance, listError, &statusError)
				require.True(testInstance, statusError.Retryable())
				var operationError serverclient.OperationError
				require.ErrorAs(testInstance, listError, &operationError)
				require.Equal(testInstance, serverclient.OperationListProjects, operationError.Operation)
				return
			}
			require.NoError(testInstance, listError)
			require.Len(testInstance, projects, testCase.expectedEntries)
			require.Equal(testInstance, testProjectNameConstant, projects[0].Name)
		})
	}
}

func TestDownloadWritesArtifact(testInstance *testing.T) {
	testCases := []struct {
		name             string
		fileName         string
		expectedBaseName func(identifier string) string
	}{
		{name: "content_disposition_name", fileName: "Cleanup.tflx", expectedBaseName: func(string) string { return "Cleanup.tflx" }},
		{name: "identifier_fallback", expectedBaseName: func(identifier string) string { return identifier + ".tflx" }},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := newTestServer(testInstance, false)
			identifier := server.AddObject(content.KindFlow, servertest.Object{
				Name:     testFlowNameConstant,
				Content:  []byte(testArtifactContentConstant),
				FileName: testCase.fileName,
			})
			session := signIn(testInstance, server)
			directory := testInstance.TempDir()

			downloadedPath, downloadError := session.Download(context.Background(), content.KindFlow, identifier, directory)
			require.NoError(testInstance, downloadError)
			require.Equal(testInstance, filepath.Join(directory, testCase.expectedBaseName(identifier)), downloadedPath)

			downloaded, readError := os.ReadFile(downloadedPath)
			require.NoError(testInstance, readError)
			require.Equal(testInstance, testArtifactContentConstant, string(downloaded))
		})
	}
}

func TestDownloadFailureLeavesNoFile(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	identifier := server.AddObject(content.KindDatasource, servertest.Object{Name: "Sales", FileName: "Sales.tdsx"})
	server.FailDownload(identifier, "extract unavailable")
	session := signIn(testInstance, server)
	directory := testInstance.TempDir()

	downloadedPath, downloadError := session.Download(context.Background(), content.KindDatasource, identifier, directory)
	require.Error(testInstance, downloadError)
	require.Contains(testInstance, downloadError.Error(), "extract unavailable")
	require.Empty(testInstance, downloadedPath)

	entries, readError := os.ReadDir(directory)
	require.NoError(testInstance, readError)
	require.Empty(testInstance, entries)
}

func TestPublishWorkbookSendsVisibilityAttributes(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	projectIdentifier := server.AddProject(testProjectNameConstant)
	server.SetViewsCreatedOnPublish(testWorkbookNameConstant, "Overview", "Detail", "Scratch")
	session := signIn(testInstance, server)
	artifactPath := writeArtifact(testInstance, testWorkbookNameConstant+".twbx")

	published, publishError := session.Publish(context.Background(), content.PublishRequest{
		Kind:                content.KindWorkbook,
		ProjectID:           projectIdentifier,
		FilePath:            artifactPath,
		Overwrite:           true,
		ShowTabs:            false,
		HiddenViews:         []string{"Scratch"},
		SkipConnectionCheck: true,
	})
	require.NoError(testInstance, publishError)
	require.Equal(testInstance, testWorkbookNameConstant, published.Name)
	require.NotEmpty(testInstance, published.WebpageURL)

	calls := server.PublishCalls()
	require.Len(testInstance, calls, 1)
	require.Equal(testInstance, testWorkbookNameConstant, calls[0].Name)
	require.Equal(testInstance, projectIdentifier, calls[0].ProjectID)
	require.Equal(testInstance, testWorkbookNameConstant+".twbx", calls[0].FileName)
	require.Equal(testInstance, testArtifactContentConstant, string(calls[0].Content))
	require.True(testInstance, calls[0].Overwrite)
	require.True(testInstance, calls[0].SkipConnectionCheck)
	require.NotNil(testInstance, calls[0].ShowTabs)
	require.False(testInstance, *calls[0].ShowTabs)
	require.Equal(testInstance, []string{"Scratch"}, calls[0].HiddenViews)

	views, viewsError := session.ListWorkbookViews(context.Background(), published.ID)
	require.NoError(testInstance, viewsError)
	require.Len(testInstance, views, 3)
	for _, view := range views {
		require.Equal(testInstance, view.Name == "Scratch", view.Hidden)
	}
}

func TestPublishOverwriteIsIdempotent(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	projectIdentifier := server.AddProject(testProjectNameConstant)
	session := signIn(testInstance, server)
	artifactPath := writeArtifact(testInstance, testFlowNameConstant+".tflx")

	request := content.PublishRequest{
		Kind:      content.KindFlow,
		Name:      testFlowNameConstant,
		ProjectID: projectIdentifier,
		FilePath:  artifactPath,
		Overwrite: true,
	}
	first, firstError := session.Publish(context.Background(), request)
	require.NoError(testInstance, firstError)
	second, secondError := session.Publish(context.Background(), request)
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, first.ID, second.ID)
	require.Len(testInstance, server.Objects(content.KindFlow), 1)
	require.False(testInstance, server.PublishCalls()[0].SkipConnectionCheck)
}

func TestPublishWithoutOverwriteConflicts(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	projectIdentifier := server.AddProject(testProjectNameConstant)
	session := signIn(testInstance, server)
	artifactPath := writeArtifact(testInstance, testFlowNameConstant+".tflx")

	request := content.PublishRequest{Kind: content.KindFlow, ProjectID: projectIdentifier, FilePath: artifactPath}
	_, firstError := session.Publish(context.Background(), request)
	require.NoError(testInstance, firstError)

	_, secondError := session.Publish(context.Background(), request)
	var statusError serverclient.StatusError
	require.ErrorAs(testInstance, secondError, &statusError)
	require.Equal(testInstance, 409, statusError.StatusCode)
}

func TestPublishMissingArtifactFails(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	projectIdentifier := server.AddProject(testProjectNameConstant)
	session := signIn(testInstance, server)

	_, publishError := session.Publish(context.Background(), content.PublishRequest{
		Kind:      content.KindDatasource,
		ProjectID: projectIdentifier,
		FilePath:  filepath.Join(testInstance.TempDir(), "absent.tdsx"),
		Overwrite: true,
	})
	require.Error(testInstance, publishError)
	require.ErrorIs(testInstance, publishError, os.ErrNotExist)
	require.Empty(testInstance, server.PublishCalls())
}

func TestPublishValidatesRequest(testInstance *testing.T) {
	server := newTestServer(testInstance, false)
	session := signIn(testInstance, server)

	testCases := []struct {
		name    string
		request content.PublishRequest
	}{
		{name: "unknown_kind", request: content.PublishRequest{Kind: content.Kind("sheet"), ProjectID: "p", FilePath: "f"}},
		{name: "missing_project", request: content.PublishRequest{Kind: content.KindFlow, FilePath: "f"}},
		{name: "missing_path", request: content.PublishRequest{Kind: content.KindFlow, ProjectID: "p"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, publishError := session.Publish(context.Background(), testCase.request)
			require.ErrorAs(testInstance, publishError, &serverclient.InvalidInputError{})
		})
	}
}

func TestFlexibleBoolDecoding(testInstance *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expected    bool
		expectError bool
	}{
		{name: "boolean_true", input: `true`, expected: true},
		{name: "string_false", input: `"false"`, expected: false},
		{name: "string_true", input: `"true"`, expected: true},
		{name: "empty_string", input: `""`, expected: false},
		{name: "null", input: `null`, expected: false},
		{name: "garbage", input: `"maybe"`, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var value serverclient.FlexibleBool
			decodingError := json.Unmarshal([]byte(testCase.input), &value)
			if testCase.expectError {
				require.Error(testInstance, decodingError)
				return
			}
			require.NoError(testInstance, decodingError)
			require.Equal(testInstance, testCase.expected, bool(value))
		})
	}
}
