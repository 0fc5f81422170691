// Package servertest provides an in-memory analytics server used by adapter and
// end-to-end tests.
package servertest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	defaultSiteContentURLConstant = "analytics"
	defaultUserNameConstant       = "migrator"
	defaultSecretConstant         = "secret"
	authenticationHeaderConstant  = "X-Tableau-Auth"
	contentTypeHeaderConstant     = "Content-Type"
	jsonMediaTypeConstant         = "application/json"
	octetStreamMediaTypeConstant  = "application/octet-stream"
	boundaryParameterConstant     = "boundary"
	payloadPartNameConstant       = "request_payload"
	filePartPrefixConstant        = "tableau_"
	contentDispositionConstant    = "Content-Disposition"
	attachmentTemplateConstant    = `attachment; filename="%s"`
	webpageURLTemplateConstant    = "%s/#/site/%s/%s/%s"
	errorCodeUnauthorized         = "401002"
	errorCodeNotFound             = "404000"
	errorCodeConflict             = "409004"
	errorCodeThrottled            = "429000"
	errorCodeBadRequest           = "400000"
	errorCodeInjected             = "500000"
)

// View is a workbook view held by the fake server.
type View struct {
	ID     string
	Name   string
	Hidden bool
}

// Object is a flow, datasource, or workbook stored by the fake server.
type Object struct {
	ID        string
	Name      string
	ProjectID string
	Tags      []string
	ShowTabs  *bool
	Content   []byte
	FileName  string
	Views     []View
}

// PublishCall records one publish request received by the fake server.
type PublishCall struct {
	Kind                content.Kind
	Name                string
	ProjectID           string
	FileName            string
	Content             []byte
	Overwrite           bool
	SkipConnectionCheck bool
	ShowTabs            *bool
	HiddenViews         []string
}

// Options configures the accepted credentials and site.
type Options struct {
	SiteContentURL      string
	Name                string
	Secret              string
	PersonalAccessToken bool
}

// Server is an httptest-backed analytics server with flows, datasources, workbooks, and projects.
type Server struct {
	httpServer        *httptest.Server
	options           Options
	siteID            string
	mutex             sync.Mutex
	tokens            map[string]bool
	projects          []content.Project
	objects           map[content.Kind][]*Object
	viewsOnPublish    map[string][]string
	publishFailures   map[string]string
	downloadFailures  map[string]string
	viewListFailures  map[string]string
	throttleRemaining int
	publishCalls      []PublishCall
	signInCount       int
	signOutCount      int
}

// New starts a fake server and registers its shutdown with testInstance.
func New(testInstance testing.TB, options Options) *Server {
	testInstance.Helper()

	if len(options.SiteContentURL) == 0 {
		options.SiteContentURL = defaultSiteContentURLConstant
	}
	if len(options.Name) == 0 {
		options.Name = defaultUserNameConstant
	}
	if len(options.Secret) == 0 {
		options.Secret = defaultSecretConstant
	}

	server := &Server{
		options:          options,
		siteID:           uuid.NewString(),
		tokens:           map[string]bool{},
		objects:          map[content.Kind][]*Object{},
		viewsOnPublish:   map[string][]string{},
		publishFailures:  map[string]string{},
		downloadFailures: map[string]string{},
		viewListFailures: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/{version}/auth/signin", server.handleSignIn)
	mux.HandleFunc("POST /api/{version}/auth/signout", server.handleSignOut)
	mux.HandleFunc("GET /api/{version}/sites/{site}/projects", server.authenticated(server.handleListProjects))
	mux.HandleFunc("GET /api/{version}/sites/{site}/{collection}", server.authenticated(server.handleListObjects))
	mux.HandleFunc("GET /api/{version}/sites/{site}/workbooks/{identifier}/views", server.authenticated(server.handleListViews))
	mux.HandleFunc("GET /api/{version}/sites/{site}/{collection}/{identifier}/content", server.authenticated(server.handleDownload))
	mux.HandleFunc("POST /api/{version}/sites/{site}/{collection}", server.authenticated(server.handlePublish))

	server.httpServer = httptest.NewServer(server.throttled(mux))
	testInstance.Cleanup(server.httpServer.Close)
	return server
}

// URL returns the server base address.
func (server *Server) URL() string {
	return server.httpServer.URL
}

// Options returns the accepted credentials and site.
func (server *Server) Options() Options {
	return server.options
}

// SiteID returns the identifier returned on sign-in.
func (server *Server) SiteID() string {
	return server.siteID
}

// AddProject registers a project and returns its identifier.
func (server *Server) AddProject(name string) string {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	identifier := uuid.NewString()
	server.projects = append(server.projects, content.Project{ID: identifier, Name: name})
	return identifier
}

// AddObject stores an object of kind and returns its identifier.
func (server *Server) AddObject(kind content.Kind, object Object) string {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	if len(object.ID) == 0 {
		object.ID = uuid.NewString()
	}
	stored := object
	server.objects[kind] = append(server.objects[kind], &stored)
	return stored.ID
}

// SetViewsCreatedOnPublish declares the view names the server materializes when a workbook named name is published.
func (server *Server) SetViewsCreatedOnPublish(name string, viewNames ...string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.viewsOnPublish[name] = append([]string{}, viewNames...)
}

// FailPublish makes publishing an object named name fail with message.
func (server *Server) FailPublish(name string, message string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.publishFailures[name] = message
}

// FailDownload makes downloading the object with identifier fail with message.
func (server *Server) FailDownload(identifier string, message string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.downloadFailures[identifier] = message
}

// FailViewListing makes listing views of the workbook with identifier fail with message.
func (server *Server) FailViewListing(identifier string, message string) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.viewListFailures[identifier] = message
}

// ThrottleNextRequests answers the next count requests with 429.
func (server *Server) ThrottleNextRequests(count int) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.throttleRemaining = count
}

// Objects returns copies of the stored objects of kind.
func (server *Server) Objects(kind content.Kind) []Object {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	objects := make([]Object, 0, len(server.objects[kind]))
	for _, object := range server.objects[kind] {
		copied := *object
		copied.Views = append([]View{}, object.Views...)
		objects = append(objects, copied)
	}
	return objects
}

// PublishCalls returns every publish request received.
func (server *Server) PublishCalls() []PublishCall {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return append([]PublishCall{}, server.publishCalls...)
}

// SignInCount returns the number of successful sign-ins.
func (server *Server) SignInCount() int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.signInCount
}

// SignOutCount returns the number of sign-outs.
func (server *Server) SignOutCount() int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.signOutCount
}

// ActiveSessions returns the number of tokens not yet revoked.
func (server *Server) ActiveSessions() int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return len(server.tokens)
}

func (server *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		server.mutex.Lock()
		throttle := server.throttleRemaining > 0
		if throttle {
			server.throttleRemaining--
		}
		server.mutex.Unlock()

		if throttle {
			_, _ = io.Copy(io.Discard, request.Body)
			writeError(responseWriter, http.StatusTooManyRequests, errorCodeThrottled, "Too Many Requests", "retry later")
			return
		}
		next.ServeHTTP(responseWriter, request)
	})
}

func (server *Server) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(responseWriter http.ResponseWriter, request *http.Request) {
		server.mutex.Lock()
		valid := server.tokens[request.Header.Get(authenticationHeaderConstant)]
		server.mutex.Unlock()

		if !valid {
			writeError(responseWriter, http.StatusUnauthorized, errorCodeUnauthorized, "Signin Error", "invalid authentication token")
			return
		}
		if request.PathValue("site") != server.siteID {
			writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Site Not Found", request.PathValue("site"))
			return
		}
		handler(responseWriter, request)
	}
}

type signInRequest struct {
	Credentials struct {
		Name                      string `json:"name"`
		Password                  string `json:"password"`
		PersonalAccessTokenName   string `json:"personalAccessTokenName"`
		PersonalAccessTokenSecret string `json:"personalAccessTokenSecret"`
		Site                      struct {
			ContentURL string `json:"contentUrl"`
		} `json:"site"`
	} `json:"credentials"`
}

func (server *Server) handleSignIn(responseWriter http.ResponseWriter, request *http.Request) {
	var payload signInRequest
	if decodingError := json.NewDecoder(request.Body).Decode(&payload); decodingError != nil {
		writeError(responseWriter, http.StatusBadRequest, errorCodeBadRequest, "Bad Request", decodingError.Error())
		return
	}

	name, secret := payload.Credentials.Name, payload.Credentials.Password
	if server.options.PersonalAccessToken {
		name, secret = payload.Credentials.PersonalAccessTokenName, payload.Credentials.PersonalAccessTokenSecret
	}
	if name != server.options.Name || secret != server.options.Secret || payload.Credentials.Site.ContentURL != server.options.SiteContentURL {
		writeError(responseWriter, http.StatusUnauthorized, errorCodeUnauthorized, "Signin Error", "invalid credentials")
		return
	}

	token := uuid.NewString()
	server.mutex.Lock()
	server.tokens[token] = true
	server.signInCount++
	server.mutex.Unlock()

	writeJSON(responseWriter, http.StatusOK, map[string]any{
		"credentials": map[string]any{
			"token": token,
			"site":  map[string]string{"id": server.siteID, "contentUrl": server.options.SiteContentURL},
			"user":  map[string]string{"id": uuid.NewString()},
		},
	})
}

func (server *Server) handleSignOut(responseWriter http.ResponseWriter, request *http.Request) {
	server.mutex.Lock()
	token := request.Header.Get(authenticationHeaderConstant)
	if server.tokens[token] {
		delete(server.tokens, token)
		server.signOutCount++
	}
	server.mutex.Unlock()
	responseWriter.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleListProjects(responseWriter http.ResponseWriter, request *http.Request) {
	server.mutex.Lock()
	page := paginate(server.projects, request)
	server.mutex.Unlock()

	projects := make([]map[string]string, 0, len(page))
	for _, project := range page {
		projects = append(projects, map[string]string{"id": project.ID, "name": project.Name})
	}
	writeJSON(responseWriter, http.StatusOK, map[string]any{"projects": map[string]any{"project": projects}})
}

func (server *Server) handleListObjects(responseWriter http.ResponseWriter, request *http.Request) {
	kind, singular, resolved := kindForCollection(request.PathValue("collection"))
	if !resolved {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Resource Not Found", request.PathValue("collection"))
		return
	}

	server.mutex.Lock()
	page := paginate(server.objects[kind], request)
	listed := make([]map[string]any, 0, len(page))
	for _, object := range page {
		listed = append(listed, server.renderObject(kind, object))
	}
	server.mutex.Unlock()

	writeJSON(responseWriter, http.StatusOK, map[string]any{
		request.PathValue("collection"): map[string]any{singular: listed},
	})
}

func (server *Server) handleListViews(responseWriter http.ResponseWriter, request *http.Request) {
	identifier := request.PathValue("identifier")

	server.mutex.Lock()
	failure, failing := server.viewListFailures[identifier]
	object := findByID(server.objects[content.KindWorkbook], identifier)
	var views []map[string]any
	if object != nil {
		for _, view := range object.Views {
			views = append(views, map[string]any{"id": view.ID, "name": view.Name, "hidden": view.Hidden})
		}
	}
	server.mutex.Unlock()

	if failing {
		writeError(responseWriter, http.StatusInternalServerError, errorCodeInjected, "Internal Server Error", failure)
		return
	}
	if object == nil {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Workbook Not Found", identifier)
		return
	}
	writeJSON(responseWriter, http.StatusOK, map[string]any{"views": map[string]any{"view": views}})
}

func (server *Server) handleDownload(responseWriter http.ResponseWriter, request *http.Request) {
	kind, _, resolved := kindForCollection(request.PathValue("collection"))
	if !resolved {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Resource Not Found", request.PathValue("collection"))
		return
	}
	identifier := request.PathValue("identifier")

	server.mutex.Lock()
	failure, failing := server.downloadFailures[identifier]
	object := findByID(server.objects[kind], identifier)
	var body []byte
	fileName := ""
	if object != nil {
		body = append([]byte{}, object.Content...)
		fileName = object.FileName
	}
	server.mutex.Unlock()

	if failing {
		writeError(responseWriter, http.StatusInternalServerError, errorCodeInjected, "Internal Server Error", failure)
		return
	}
	if object == nil {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Resource Not Found", identifier)
		return
	}

	if len(fileName) > 0 {
		responseWriter.Header().Set(contentDispositionConstant, fmt.Sprintf(attachmentTemplateConstant, fileName))
	}
	responseWriter.Header().Set(contentTypeHeaderConstant, octetStreamMediaTypeConstant)
	responseWriter.WriteHeader(http.StatusOK)
	_, _ = responseWriter.Write(body)
}

type publishedAttributes struct {
	Name     string  `json:"name"`
	ShowTabs *string `json:"showTabs"`
	Project  struct {
		ID string `json:"id"`
	} `json:"project"`
	Views *struct {
		View []struct {
			Name   string `json:"name"`
			Hidden string `json:"hidden"`
		} `json:"view"`
	} `json:"views"`
}

func (server *Server) handlePublish(responseWriter http.ResponseWriter, request *http.Request) {
	kind, singular, resolved := kindForCollection(request.PathValue("collection"))
	if !resolved {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Resource Not Found", request.PathValue("collection"))
		return
	}

	call, parseError := parsePublishRequest(kind, singular, request)
	if parseError != nil {
		writeError(responseWriter, http.StatusBadRequest, errorCodeBadRequest, "Bad Request", parseError.Error())
		return
	}

	server.mutex.Lock()
	defer server.mutex.Unlock()

	server.publishCalls = append(server.publishCalls, call)

	if failure, failing := server.publishFailures[call.Name]; failing {
		writeError(responseWriter, http.StatusInternalServerError, errorCodeInjected, "Internal Server Error", failure)
		return
	}
	if !slices.ContainsFunc(server.projects, func(project content.Project) bool { return project.ID == call.ProjectID }) {
		writeError(responseWriter, http.StatusNotFound, errorCodeNotFound, "Project Not Found", call.ProjectID)
		return
	}

	object := findByProjectAndName(server.objects[kind], call.ProjectID, call.Name)
	switch {
	case object != nil && !call.Overwrite:
		writeError(responseWriter, http.StatusConflict, errorCodeConflict, "Resource Conflict", call.Name)
		return
	case object == nil:
		object = &Object{ID: uuid.NewString(), Name: call.Name, ProjectID: call.ProjectID}
		server.objects[kind] = append(server.objects[kind], object)
	}

	object.Content = call.Content
	object.FileName = call.FileName
	object.ShowTabs = call.ShowTabs
	if kind == content.KindWorkbook {
		object.Views = object.Views[:0]
		for _, viewName := range server.viewsOnPublish[call.Name] {
			object.Views = append(object.Views, View{
				ID:     uuid.NewString(),
				Name:   viewName,
				Hidden: slices.Contains(call.HiddenViews, viewName),
			})
		}
	}

	writeJSON(responseWriter, http.StatusCreated, map[string]any{singular: server.renderObject(kind, object)})
}

func parsePublishRequest(kind content.Kind, singular string, request *http.Request) (PublishCall, error) {
	call := PublishCall{Kind: kind}
	query := request.URL.Query()
	call.Overwrite, _ = strconv.ParseBool(query.Get("overwrite"))
	call.SkipConnectionCheck, _ = strconv.ParseBool(query.Get("skipConnectionCheck"))

	mediaType, parameters, mediaError := mime.ParseMediaType(request.Header.Get(contentTypeHeaderConstant))
	if mediaError != nil {
		return call, mediaError
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return call, fmt.Errorf("unexpected media type %s", mediaType)
	}

	reader := multipart.NewReader(request.Body, parameters[boundaryParameterConstant])
	var payload map[string]publishedAttributes
	for {
		part, partError := reader.NextPart()
		if partError == io.EOF {
			break
		}
		if partError != nil {
			return call, partError
		}

		switch part.FormName() {
		case payloadPartNameConstant:
			if decodingError := json.NewDecoder(part).Decode(&payload); decodingError != nil {
				return call, decodingError
			}
		case filePartPrefixConstant + singular:
			body, readError := io.ReadAll(part)
			if readError != nil {
				return call, readError
			}
			call.Content = body
			call.FileName = part.FileName()
		default:
			return call, fmt.Errorf("unexpected part %s", part.FormName())
		}
	}

	attributes, present := payload[singular]
	if !present {
		return call, fmt.Errorf("request payload missing %s", singular)
	}
	if call.Content == nil {
		return call, fmt.Errorf("request missing %s file part", singular)
	}

	call.Name = attributes.Name
	call.ProjectID = attributes.Project.ID
	if attributes.ShowTabs != nil {
		showTabs, _ := strconv.ParseBool(*attributes.ShowTabs)
		call.ShowTabs = &showTabs
	}
	if attributes.Views != nil {
		for _, view := range attributes.Views.View {
			if hidden, _ := strconv.ParseBool(view.Hidden); hidden {
				call.HiddenViews = append(call.HiddenViews, view.Name)
			}
		}
	}
	return call, nil
}

func (server *Server) renderObject(kind content.Kind, object *Object) map[string]any {
	rendered := map[string]any{
		"id":         object.ID,
		"name":       object.Name,
		"webpageUrl": fmt.Sprintf(webpageURLTemplateConstant, server.httpServer.URL, server.options.SiteContentURL, string(kind)+"s", object.ID),
	}
	if project, found := server.projectByID(object.ProjectID); found {
		rendered["project"] = map[string]string{"id": project.ID, "name": project.Name}
	} else if len(object.ProjectID) > 0 {
		rendered["project"] = map[string]string{"id": object.ProjectID}
	}
	tags := make([]map[string]string, 0, len(object.Tags))
	for _, tag := range object.Tags {
		tags = append(tags, map[string]string{"label": tag})
	}
	rendered["tags"] = map[string]any{"tag": tags}
	if object.ShowTabs != nil {
		rendered["showTabs"] = strconv.FormatBool(*object.ShowTabs)
	}
	return rendered
}

func (server *Server) projectByID(identifier string) (content.Project, bool) {
	for _, project := range server.projects {
		if project.ID == identifier {
			return project, true
		}
	}
	return content.Project{}, false
}

func kindForCollection(collection string) (content.Kind, string, bool) {
	switch collection {
	case "flows":
		return content.KindFlow, "flow", true
	case "datasources":
		return content.KindDatasource, "datasource", true
	case "workbooks":
		return content.KindWorkbook, "workbook", true
	default:
		return "", "", false
	}
}

func paginate[Item any](items []Item, request *http.Request) []Item {
	pageNumber, numberError := strconv.Atoi(request.URL.Query().Get("pageNumber"))
	if numberError != nil || pageNumber < 1 {
		pageNumber = 1
	}
	pageSize, sizeError := strconv.Atoi(request.URL.Query().Get("pageSize"))
	if sizeError != nil || pageSize < 1 {
		pageSize = 100
	}
	start := (pageNumber - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}

func findByID(objects []*Object, identifier string) *Object {
	for _, object := range objects {
		if object.ID == identifier {
			return object
		}
	}
	return nil
}

func findByProjectAndName(objects []*Object, projectID string, name string) *Object {
	for _, object := range objects {
		if object.ProjectID == projectID && object.Name == name {
			return object
		}
	}
	return nil
}

func writeJSON(responseWriter http.ResponseWriter, status int, payload any) {
	responseWriter.Header().Set(contentTypeHeaderConstant, jsonMediaTypeConstant)
	responseWriter.WriteHeader(status)
	_ = json.NewEncoder(responseWriter).Encode(payload)
}

func writeError(responseWriter http.ResponseWriter, status int, code string, summary string, detail string) {
	writeJSON(responseWriter, status, map[string]any{
		"error": map[string]string{"code": code, "summary": summary, "detail": detail},
	})
}
