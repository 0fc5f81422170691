package serverclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-querystring/query"
	"go.uber.org/zap"

	"github.com/temirov/tabmigrate/internal/content"
	"github.com/temirov/tabmigrate/internal/pagination"
)

const (
	authPathSegmentConstant             = "auth"
	signInPathSegmentConstant           = "signin"
	signOutPathSegmentConstant          = "signout"
	sitesPathSegmentConstant            = "sites"
	projectsPathSegmentConstant         = "projects"
	viewsPathSegmentConstant            = "views"
	contentPathSegmentConstant          = "content"
	flowsPathSegmentConstant            = "flows"
	datasourcesPathSegmentConstant      = "datasources"
	workbooksPathSegmentConstant        = "workbooks"
	contentDispositionHeaderConstant    = "Content-Disposition"
	contentDispositionFilenameConstant  = "filename"
	flowFileExtensionConstant           = "tflx"
	datasourceFileExtensionConstant     = "tdsx"
	workbookFileExtensionConstant       = "twbx"
	fileTypeQuerySuffixConstant         = "Type"
	nameFieldNameConstant               = "name"
	secretFieldNameConstant             = "secret"
	kindFieldNameConstant               = "kind"
	objectIdentifierFieldNameConstant   = "object_id"
	directoryFieldNameConstant          = "directory"
	projectIdentifierFieldNameConstant  = "project_id"
	filePathFieldNameConstant           = "file_path"
	unsupportedKindMessageConstant      = "unsupported content kind"
	missingTokenMessageConstant         = "sign-in response did not include a token"
	missingPublishedObjectMessage       = "publish response did not include the published object"
	queryEncodingErrorTemplateConstant  = "unable to encode query: %w"
	downloadCreateErrorTemplateConstant = "unable to create %s: %w"
	downloadWriteErrorTemplateConstant  = "unable to write %s: %w"
	logMessageSignedInConstant          = "signed in to server"
	logMessageSignedOutConstant         = "signed out of server"
	logFieldSiteConstant                = "site"
	logFieldUserConstant                = "user_id"
)

// SignInRequest carries the site and credential pair used for authentication.
type SignInRequest struct {
	Site                string
	Name                string
	Secret              string
	PersonalAccessToken bool
}

// Session is an authenticated handle scoped to one site.
type Session struct {
	client         *Client
	token          string
	siteID         string
	siteContentURL string
	userID         string
}

type publishQuery struct {
	Overwrite           bool `url:"overwrite"`
	SkipConnectionCheck bool `url:"skipConnectionCheck,omitempty"`
}

// SignIn authenticates and returns a site-scoped Session.
func (client *Client) SignIn(executionContext context.Context, request SignInRequest) (*Session, error) {
	if len(strings.TrimSpace(request.Name)) == 0 {
		return nil, InvalidInputError{FieldName: nameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(request.Secret) == 0 {
		return nil, InvalidInputError{FieldName: secretFieldNameConstant, Message: requiredValueMessageConstant}
	}

	credentials := signInCredentialsPayload{Site: siteReferencePayload{ContentURL: request.Site}}
	if request.PersonalAccessToken {
		credentials.PersonalAccessTokenName = request.Name
		credentials.PersonalAccessTokenSecret = request.Secret
	} else {
		credentials.Name = request.Name
		credentials.Password = request.Secret
	}

	var response signInResponsePayload
	signInError := client.executeJSON(executionContext, requestPlan{
		operation:   OperationSignIn,
		method:      http.MethodPost,
		pathParts:   []string{authPathSegmentConstant, signInPathSegmentConstant},
		bodyFactory: newJSONBodyFactory(signInRequestPayload{Credentials: credentials}),
	}, &response)
	if signInError != nil {
		return nil, signInError
	}

	if len(response.Credentials.Token) == 0 {
		return nil, ResponseDecodingError{Operation: OperationSignIn, Cause: errors.New(missingTokenMessageConstant)}
	}

	client.logger.Debug(
		logMessageSignedInConstant,
		zap.String(logFieldSiteConstant, response.Credentials.Site.ContentURL),
		zap.String(logFieldUserConstant, response.Credentials.User.ID),
	)

	return &Session{
		client:         client,
		token:          response.Credentials.Token,
		siteID:         response.Credentials.Site.ID,
		siteContentURL: response.Credentials.Site.ContentURL,
		userID:         response.Credentials.User.ID,
	}, nil
}

// SiteID returns the identifier of the signed-in site.
func (session *Session) SiteID() string {
	return session.siteID
}

// SignOut revokes the session token. Signing out twice is a no-op.
func (session *Session) SignOut(executionContext context.Context) error {
	if session == nil || len(session.token) == 0 {
		return nil
	}

	signOutError := session.client.executeJSON(executionContext, requestPlan{
		operation: OperationSignOut,
		method:    http.MethodPost,
		pathParts: []string{authPathSegmentConstant, signOutPathSegmentConstant},
		token:     session.token,
	}, nil)
	session.token = ""
	if signOutError != nil {
		return signOutError
	}

	session.client.logger.Debug(logMessageSignedOutConstant, zap.String(logFieldSiteConstant, session.siteContentURL))
	return nil
}

// ListObjects returns one page of flows, datasources, or workbooks.
func (session *Session) ListObjects(executionContext context.Context, kind content.Kind, page pagination.PageRequest) ([]content.ObjectDescriptor, error) {
	collectionSegment, segmentError := collectionPathSegment(kind)
	if segmentError != nil {
		return nil, segmentError
	}

	values, encodingError := query.Values(page)
	if encodingError != nil {
		return nil, OperationError{Operation: OperationListObjects, Cause: fmt.Errorf(queryEncodingErrorTemplateConstant, encodingError)}
	}

	var response objectListPayload
	listError := session.client.executeJSON(executionContext, requestPlan{
		operation: OperationListObjects,
		method:    http.MethodGet,
		pathParts: session.sitePath(collectionSegment),
		query:     values,
		token:     session.token,
	}, &response)
	if listError != nil {
		return nil, listError
	}

	objects := response.objects(kind)
	descriptors := make([]content.ObjectDescriptor, 0, len(objects))
	for _, object := range objects {
		descriptors = append(descriptors, object.descriptor())
	}
	return descriptors, nil
}

// ListProjects returns one page of projects on the site.
func (session *Session) ListProjects(executionContext context.Context, page pagination.PageRequest) ([]content.Project, error) {
	values, encodingError := query.Values(page)
	if encodingError != nil {
		return nil, OperationError{Operation: OperationListProjects, Cause: fmt.Errorf(queryEncodingErrorTemplateConstant, encodingError)}
	}

	var response projectListPayload
	listError := session.client.executeJSON(executionContext, requestPlan{
		operation: OperationListProjects,
		method:    http.MethodGet,
		pathParts: session.sitePath(projectsPathSegmentConstant),
		query:     values,
		token:     session.token,
	}, &response)
	if listError != nil {
		return nil, listError
	}

	projects := make([]content.Project, 0, len(response.Projects.Project))
	for _, project := range response.Projects.Project {
		projects = append(projects, content.Project{ID: project.ID, Name: project.Name})
	}
	return projects, nil
}

// ListWorkbookViews returns the views of a workbook.
func (session *Session) ListWorkbookViews(executionContext context.Context, workbookID string) ([]content.View, error) {
	trimmedIdentifier := strings.TrimSpace(workbookID)
	if len(trimmedIdentifier) == 0 {
		return nil, InvalidInputError{FieldName: objectIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var response viewListPayload
	listError := session.client.executeJSON(executionContext, requestPlan{
		operation: OperationListViews,
		method:    http.MethodGet,
		pathParts: session.sitePath(workbooksPathSegmentConstant, trimmedIdentifier, viewsPathSegmentConstant),
		token:     session.token,
	}, &response)
	if listError != nil {
		return nil, listError
	}

	views := make([]content.View, 0, len(response.Views.View))
	for _, view := range response.Views.View {
		views = append(views, view.view())
	}
	return views, nil
}

// Download saves the object's content file into directory and returns the file path.
func (session *Session) Download(executionContext context.Context, kind content.Kind, objectID string, directory string) (string, error) {
	collectionSegment, segmentError := collectionPathSegment(kind)
	if segmentError != nil {
		return "", segmentError
	}
	trimmedIdentifier := strings.TrimSpace(objectID)
	if len(trimmedIdentifier) == 0 {
		return "", InvalidInputError{FieldName: objectIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(directory)) == 0 {
		return "", InvalidInputError{FieldName: directoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	response, executionError := session.client.execute(executionContext, requestPlan{
		operation: OperationDownload,
		method:    http.MethodGet,
		pathParts: session.sitePath(collectionSegment, trimmedIdentifier, contentPathSegmentConstant),
		token:     session.token,
	})
	if executionError != nil {
		return "", executionError
	}
	defer session.client.closeBody(response)

	fileName := downloadFileName(response.Header.Get(contentDispositionHeaderConstant), kind, trimmedIdentifier)
	filePath := filepath.Join(directory, fileName)

	file, createError := os.Create(filePath)
	if createError != nil {
		return "", OperationError{Operation: OperationDownload, Cause: fmt.Errorf(downloadCreateErrorTemplateConstant, filePath, createError)}
	}

	_, copyError := io.Copy(file, response.Body)
	closeError := file.Close()
	if copyError == nil {
		copyError = closeError
	}
	if copyError != nil {
		_ = os.Remove(filePath)
		return "", OperationError{Operation: OperationDownload, Cause: fmt.Errorf(downloadWriteErrorTemplateConstant, filePath, copyError)}
	}

	return filePath, nil
}

// Publish uploads a staged artifact into a project.
func (session *Session) Publish(executionContext context.Context, request content.PublishRequest) (content.PublishedObject, error) {
	collectionSegment, segmentError := collectionPathSegment(request.Kind)
	if segmentError != nil {
		return content.PublishedObject{}, segmentError
	}
	if len(strings.TrimSpace(request.ProjectID)) == 0 {
		return content.PublishedObject{}, InvalidInputError{FieldName: projectIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(request.FilePath)) == 0 {
		return content.PublishedObject{}, InvalidInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	objectName := strings.TrimSpace(request.Name)
	if len(objectName) == 0 {
		objectName = strings.TrimSuffix(filepath.Base(request.FilePath), filepath.Ext(request.FilePath))
	}

	payload := objectPayload{
		Name:    objectName,
		Project: &projectReferencePayload{ID: request.ProjectID},
	}
	if request.Kind == content.KindWorkbook {
		showTabs := FlexibleBool(request.ShowTabs)
		payload.ShowTabs = &showTabs
		if len(request.HiddenViews) > 0 {
			hidden := FlexibleBool(true)
			views := &viewsPayload{}
			for _, viewName := range request.HiddenViews {
				views.View = append(views.View, viewPayload{Name: viewName, Hidden: &hidden})
			}
			payload.Views = views
		}
	}

	values, encodingError := query.Values(publishQuery{
		Overwrite:           request.Overwrite,
		SkipConnectionCheck: request.SkipConnectionCheck && request.Kind == content.KindWorkbook,
	})
	if encodingError != nil {
		return content.PublishedObject{}, OperationError{Operation: OperationPublish, Cause: fmt.Errorf(queryEncodingErrorTemplateConstant, encodingError)}
	}
	if fileExtension := strings.TrimPrefix(filepath.Ext(request.FilePath), "."); len(fileExtension) > 0 {
		values.Set(string(request.Kind)+fileTypeQuerySuffixConstant, strings.ToLower(fileExtension))
	}

	var response objectEnvelope
	publishError := session.client.executeJSON(executionContext, requestPlan{
		operation:   OperationPublish,
		method:      http.MethodPost,
		pathParts:   session.sitePath(collectionSegment),
		query:       values,
		token:       session.token,
		bodyFactory: newPublishBodyFactory(request.Kind, newObjectEnvelope(request.Kind, payload), request.FilePath),
	}, &response)
	if publishError != nil {
		return content.PublishedObject{}, publishError
	}

	published := response.object(request.Kind)
	if published == nil {
		return content.PublishedObject{}, ResponseDecodingError{Operation: OperationPublish, Cause: errors.New(missingPublishedObjectMessage)}
	}

	return content.PublishedObject{ID: published.ID, Name: published.Name, WebpageURL: published.WebpageURL}, nil
}

func (session *Session) sitePath(parts ...string) []string {
	return append([]string{sitesPathSegmentConstant, session.siteID}, parts...)
}

func collectionPathSegment(kind content.Kind) (string, error) {
	switch kind {
	case content.KindFlow:
		return flowsPathSegmentConstant, nil
	case content.KindDatasource:
		return datasourcesPathSegmentConstant, nil
	case content.KindWorkbook:
		return workbooksPathSegmentConstant, nil
	default:
		return "", InvalidInputError{FieldName: kindFieldNameConstant, Message: unsupportedKindMessageConstant}
	}
}

func defaultFileExtension(kind content.Kind) string {
	switch kind {
	case content.KindFlow:
		return flowFileExtensionConstant
	case content.KindDatasource:
		return datasourceFileExtensionConstant
	default:
		return workbookFileExtensionConstant
	}
}

func downloadFileName(contentDisposition string, kind content.Kind, objectID string) string {
	if len(contentDisposition) > 0 {
		if _, parameters, parseError := mime.ParseMediaType(contentDisposition); parseError == nil {
			candidate := filepath.Base(strings.TrimSpace(parameters[contentDispositionFilenameConstant]))
			if len(candidate) > 0 && candidate != "." && candidate != string(filepath.Separator) {
				return candidate
			}
		}
	}
	return objectID + "." + defaultFileExtension(kind)
}
