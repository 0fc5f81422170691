package migration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/migration"
	"github.com/temirov/tabmigrate/internal/pagination"
	"github.com/temirov/tabmigrate/internal/serverclient/servertest"
	"github.com/temirov/tabmigrate/internal/session"
	"github.com/temirov/tabmigrate/internal/staging"
	"github.com/temirov/tabmigrate/internal/statelog"
)

const (
	testRunIdentifierConstant = "run-0001"
	testMigrationTagConstant  = "migrate"
	testProjectNameConstant   = "Finance"
	testFlowNameConstant      = "Cleanup"
	testFlowContentConstant   = "flow-package"
	testSourceSiteConstant    = "source-site"
	testTargetSiteConstant    = "target-site"
)

var errListingUnavailable = errors.New("listing unavailable")

func testClientSettings() session.ClientSettings {
	return session.ClientSettings{
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}
}

func parametersFor(server *servertest.Server) session.Parameters {
	options := server.Options()
	return session.Parameters{
		Address: server.URL(),
		Site:    options.SiteContentURL,
		Credentials: session.Credentials{
			Name:                options.Name,
			Secret:              options.Secret,
			PersonalAccessToken: options.PersonalAccessToken,
		},
	}
}

func newSourceServer(testInstance *testing.T) *servertest.Server {
	testInstance.Helper()
	source := servertest.New(testInstance, servertest.Options{SiteContentURL: testSourceSiteConstant})
	projectID := source.AddProject(testProjectNameConstant)
	source.AddObject(content.KindFlow, servertest.Object{
		Name:      testFlowNameConstant,
		ProjectID: projectID,
		Tags:      []string{testMigrationTagConstant},
		Content:   []byte(testFlowContentConstant),
		FileName:  testFlowNameConstant + ".tflx",
	})
	source.AddObject(content.KindFlow, servertest.Object{
		Name:      "Scratch",
		ProjectID: projectID,
		Tags:      []string{"draft"},
		Content:   []byte("ignored"),
		FileName:  "Scratch.tflx",
	})
	return source
}

func newTestService(testInstance *testing.T, authenticator session.Authenticator[migration.Connection], core zapcore.Core) *migration.Service {
	testInstance.Helper()
	service, serviceError := migration.NewService(migration.ServiceDependencies{
		Logger:              zap.New(core),
		Authenticator:       authenticator,
		IdentifierGenerator: func() string { return testRunIdentifierConstant },
	})
	require.NoError(testInstance, serviceError)
	return service
}

func newTestLayout(testInstance *testing.T) staging.Layout {
	testInstance.Helper()
	layout, layoutError := staging.NewLayout(testInstance.TempDir(), nil)
	require.NoError(testInstance, layoutError)
	return layout
}

func TestServiceRoundTripsTaggedFlow(testInstance *testing.T) {
	source := newSourceServer(testInstance)
	target := servertest.New(testInstance, servertest.Options{SiteContentURL: testTargetSiteConstant})
	target.AddProject(testProjectNameConstant)

	core, logs := observer.New(zapcore.DebugLevel)
	service := newTestService(testInstance, migration.NewServerConnector(nil, testClientSettings()), core)
	layout := newTestLayout(testInstance)
	executionContext := context.Background()

	downloadResult := service.Download(executionContext, migration.PhaseOptions{
		Server: parametersFor(source),
		Layout: layout,
		Tag:    testMigrationTagConstant,
	})
	require.True(testInstance, downloadResult.Succeeded(), downloadResult.Message)
	require.Equal(testInstance, migration.StatusCodeSuccess, downloadResult.StatusCode)
	require.Len(testInstance, downloadResult.DownloadRecords, 1)
	require.Equal(testInstance, []migration.KindSummary{
		{Kind: content.KindFlow, Succeeded: 1},
		{Kind: content.KindDatasource},
		{Kind: content.KindWorkbook},
	}, downloadResult.Summaries)

	stagedPath := downloadResult.DownloadRecords[0].StagedPath
	require.Equal(testInstance, filepath.Join(layout.ObjectDirectory(content.KindFlow, testProjectNameConstant), testFlowNameConstant+".tflx"), stagedPath)
	stagedContent, readError := os.ReadFile(stagedPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testFlowContentConstant, string(stagedContent))

	for attempt := 0; attempt < 2; attempt++ {
		publishResult := service.Publish(executionContext, migration.PhaseOptions{
			Server: parametersFor(target),
			Layout: layout,
		})
		require.True(testInstance, publishResult.Succeeded(), publishResult.Message)
		require.Len(testInstance, publishResult.PublishRecords, 1)
	}

	publishRecords, readLogError := statelog.ReadPublishLog(layout.PublishLogPath(content.KindFlow))
	require.NoError(testInstance, readLogError)
	require.Len(testInstance, publishRecords, 1)
	require.Equal(testInstance, testProjectNameConstant, publishRecords[0].ProjectName)
	require.Equal(testInstance, statelog.OutcomeSuccess, publishRecords[0].Outcome)
	require.Contains(testInstance, publishRecords[0].Detail, target.URL())

	publishedFlows := target.Objects(content.KindFlow)
	require.Len(testInstance, publishedFlows, 1)
	require.Equal(testInstance, testFlowContentConstant, string(publishedFlows[0].Content))

	require.Zero(testInstance, source.ActiveSessions())
	require.Zero(testInstance, target.ActiveSessions())
	require.Equal(testInstance, 1, source.SignOutCount())
	require.Equal(testInstance, 2, target.SignOutCount())

	require.NotEmpty(testInstance, logs.All())
	for _, entry := range logs.All() {
		require.Equal(testInstance, testRunIdentifierConstant, entry.ContextMap()["run_id"], entry.Message)
	}
}

func TestServiceAuthenticationFailureIsFatal(testInstance *testing.T) {
	target := servertest.New(testInstance, servertest.Options{SiteContentURL: testTargetSiteConstant})
	parameters := parametersFor(target)
	parameters.Credentials.Secret = "wrong"

	core, logs := observer.New(zapcore.InfoLevel)
	service := newTestService(testInstance, migration.NewServerConnector(nil, testClientSettings()), core)
	layout := newTestLayout(testInstance)

	result := service.Publish(context.Background(), migration.PhaseOptions{Server: parameters, Layout: layout})
	require.False(testInstance, result.Succeeded())
	require.Equal(testInstance, migration.StatusCodeFailure, result.StatusCode)
	require.NotEmpty(testInstance, result.Message)
	require.Empty(testInstance, result.PublishRecords)

	var authenticationError session.AuthenticationError
	require.ErrorAs(testInstance, result.Err(), &authenticationError)
	var phaseError migration.PhaseError
	require.ErrorAs(testInstance, result.Err(), &phaseError)
	require.Equal(testInstance, migration.PhasePublish, phaseError.Phase)

	_, statError := os.Stat(layout.PublishLogPath(content.KindFlow))
	require.ErrorIs(testInstance, statError, os.ErrNotExist)

	failures := logs.FilterMessage("migration phase failed").All()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, true, failures[0].ContextMap()["authentication_failure"])
}

func TestServiceListingFailureEndsPhaseAndSignsOut(testInstance *testing.T) {
	connection := &stubConnection{listingError: errListingUnavailable}
	authenticator := &stubAuthenticator{connection: connection}
	service := newTestService(testInstance, authenticator, zapcore.NewNopCore())

	result := service.Download(context.Background(), migration.PhaseOptions{
		Layout: newTestLayout(testInstance),
		Tag:    testMigrationTagConstant,
	})

	require.Equal(testInstance, migration.StatusCodeFailure, result.StatusCode)
	require.ErrorIs(testInstance, result.Err(), errListingUnavailable)
	require.Equal(testInstance, []migration.KindSummary{{Kind: content.KindFlow}}, result.Summaries)
	require.Equal(testInstance, 1, connection.signOutCount)
}

func TestServiceInvalidPhaseOptionsFail(testInstance *testing.T) {
	authenticator := &stubAuthenticator{connection: &stubConnection{}}
	service := newTestService(testInstance, authenticator, zapcore.NewNopCore())

	result := service.Download(context.Background(), migration.PhaseOptions{Layout: newTestLayout(testInstance)})
	require.Equal(testInstance, migration.StatusCodeFailure, result.StatusCode)
	require.Zero(testInstance, authenticator.signInCount)

	result = service.Publish(context.Background(), migration.PhaseOptions{})
	require.Equal(testInstance, migration.StatusCodeFailure, result.StatusCode)
	require.ErrorIs(testInstance, result.Err(), staging.ErrRootNotConfigured)
	require.Zero(testInstance, authenticator.signInCount)
}

func TestServicePhaseOptionsKindsRestrictProcessing(testInstance *testing.T) {
	connection := &stubConnection{}
	service := newTestService(testInstance, &stubAuthenticator{connection: connection}, zapcore.NewNopCore())

	result := service.Download(context.Background(), migration.PhaseOptions{
		Layout: newTestLayout(testInstance),
		Tag:    testMigrationTagConstant,
		Kinds:  []content.Kind{content.KindWorkbook},
	})

	require.True(testInstance, result.Succeeded(), result.Message)
	require.Equal(testInstance, []content.Kind{content.KindWorkbook}, connection.listedKinds)
}

func TestNewServiceRequiresAuthenticator(testInstance *testing.T) {
	_, serviceError := migration.NewService(migration.ServiceDependencies{})
	require.ErrorIs(testInstance, serviceError, migration.ErrAuthenticatorNotConfigured)

	service, serviceError := migration.NewService(migration.ServiceDependencies{Authenticator: &stubAuthenticator{}})
	require.NoError(testInstance, serviceError)
	require.NotEmpty(testInstance, service.RunIdentifier())
}

type stubAuthenticator struct {
	connection  *stubConnection
	signInCount int
}

func (authenticator *stubAuthenticator) SignIn(_ context.Context, _ session.Parameters) (migration.Connection, error) {
	authenticator.signInCount++
	return authenticator.connection, nil
}

type stubConnection struct {
	listingError error
	listedKinds  []content.Kind
	signOutCount int
}

func (connection *stubConnection) SignOut(context.Context) error {
	connection.signOutCount++
	return nil
}

func (connection *stubConnection) ListObjects(_ context.Context, kind content.Kind, page pagination.PageRequest) ([]content.ObjectDescriptor, error) {
	if page.PageNumber == 1 {
		connection.listedKinds = append(connection.listedKinds, kind)
	}
	return nil, connection.listingError
}

func (connection *stubConnection) ListProjects(context.Context, pagination.PageRequest) ([]content.Project, error) {
	return nil, nil
}

func (connection *stubConnection) ListWorkbookViews(context.Context, string) ([]content.View, error) {
	return nil, nil
}

func (connection *stubConnection) Download(context.Context, content.Kind, string, string) (string, error) {
	return "", errors.New("not staged")
}

func (connection *stubConnection) Publish(context.Context, content.PublishRequest) (content.PublishedObject, error) {
	return content.PublishedObject{}, errors.New("not published")
}
