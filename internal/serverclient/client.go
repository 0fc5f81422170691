package serverclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

const (
	defaultAPIVersionConstant              = "3.19"
	defaultRequestTimeoutConstant          = 10 * time.Minute
	defaultRetryAttemptsConstant           = 3
	defaultRetryDelayConstant              = time.Second
	defaultRetryMaxDelayConstant           = 30 * time.Second
	apiPathSegmentConstant                 = "api"
	authenticationHeaderConstant           = "X-Tableau-Auth"
	acceptHeaderConstant                   = "Accept"
	contentTypeHeaderConstant              = "Content-Type"
	jsonMediaTypeConstant                  = "application/json"
	addressFieldNameConstant               = "address"
	requiredValueMessageConstant           = "value required"
	invalidAddressMessageConstant          = "must be an absolute http(s) URL"
	errorBodyReadLimitConstant             = 64 * 1024
	logMessageRequestCompletedConstant     = "server request completed"
	logMessageRetryingRequestConstant      = "retrying throttled server request"
	logFieldOperationConstant              = "operation"
	logFieldMethodConstant                 = "method"
	logFieldPathConstant                   = "path"
	logFieldStatusConstant                 = "status"
	logFieldAttemptConstant                = "attempt"
	logFieldDurationConstant               = "duration"
	nonSuccessStatusThresholdConstant      = 300
	firstClientErrorStatusCodeConstant     = 400
	missingResponseMessageConstant         = "server returned no response"
	responseBodyCloseFailedMessageConstant = "unable to close response body"
)

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Configuration describes how to reach one analytics server.
type Configuration struct {
	Address            string
	APIVersion         string
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration
	RetryMaxDelay      time.Duration
	Clock              clock.Clock
}

// Client issues REST calls against one server address.
type Client struct {
	logger        *zap.Logger
	httpClient    HTTPClient
	apiBaseURL    *url.URL
	retryAttempts int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	clock         clock.Clock
}

// NewClient constructs a Client. A nil httpClient is replaced by one honoring the
// configured timeout and TLS verification setting.
func NewClient(logger *zap.Logger, httpClient HTTPClient, configuration Configuration) (*Client, error) {
	address := strings.TrimSpace(configuration.Address)
	if len(address) == 0 {
		return nil, InvalidInputError{FieldName: addressFieldNameConstant, Message: requiredValueMessageConstant}
	}

	parsedAddress, parseError := url.Parse(address)
	if parseError != nil || len(parsedAddress.Scheme) == 0 || len(parsedAddress.Host) == 0 {
		return nil, InvalidInputError{FieldName: addressFieldNameConstant, Message: invalidAddressMessageConstant}
	}

	apiVersion := strings.TrimSpace(configuration.APIVersion)
	if len(apiVersion) == 0 {
		apiVersion = defaultAPIVersionConstant
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	if httpClient == nil {
		httpClient = newDefaultHTTPClient(configuration)
	}

	retryAttempts := configuration.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = defaultRetryAttemptsConstant
	}
	retryDelay := configuration.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelayConstant
	}
	retryMaxDelay := configuration.RetryMaxDelay
	if retryMaxDelay <= 0 {
		retryMaxDelay = defaultRetryMaxDelayConstant
	}

	retryClock := configuration.Clock
	if retryClock == nil {
		retryClock = clock.WallClock
	}

	return &Client{
		logger:        logger,
		httpClient:    httpClient,
		apiBaseURL:    parsedAddress.JoinPath(apiPathSegmentConstant, apiVersion),
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		retryMaxDelay: retryMaxDelay,
		clock:         retryClock,
	}, nil
}

func newDefaultHTTPClient(configuration Configuration) *http.Client {
	requestTimeout := configuration.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeoutConstant
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if configuration.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per server configuration
	}

	return &http.Client{Timeout: requestTimeout, Transport: transport}
}

type requestBodyFactory func() (io.ReadCloser, string, error)

type requestPlan struct {
	operation   OperationName
	method      string
	pathParts   []string
	query       url.Values
	token       string
	bodyFactory requestBodyFactory
}

func (client *Client) endpoint(pathParts ...string) *url.URL {
	return client.apiBaseURL.JoinPath(pathParts...)
}

// execute performs the request, retrying throttled responses. The caller owns the returned body.
func (client *Client) execute(executionContext context.Context, plan requestPlan) (*http.Response, error) {
	operation := plan.operation
	if len(operation) == 0 {
		operation = operationNameUndefined
	}

	var response *http.Response
	callError := retry.Call(retry.CallArgs{
		Func: func() error {
			attemptResponse, attemptError := client.attempt(executionContext, plan)
			if attemptError != nil {
				return attemptError
			}
			response = attemptResponse
			return nil
		},
		IsFatalError: func(candidate error) bool {
			var statusError StatusError
			if errors.As(candidate, &statusError) {
				return !statusError.Retryable()
			}
			return true
		},
		NotifyFunc: func(lastError error, attempt int) {
			client.logger.Debug(
				logMessageRetryingRequestConstant,
				zap.String(logFieldOperationConstant, string(operation)),
				zap.Int(logFieldAttemptConstant, attempt),
				zap.Error(lastError),
			)
		},
		Attempts:    client.retryAttempts,
		Delay:       client.retryDelay,
		MaxDelay:    client.retryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       client.clock,
		Stop:        executionContext.Done(),
	})
	if callError != nil {
		if retry.IsRetryStopped(callError) && executionContext.Err() != nil {
			return nil, OperationError{Operation: operation, Cause: executionContext.Err()}
		}
		if retry.IsAttemptsExceeded(callError) || retry.IsDurationExceeded(callError) {
			callError = retry.LastError(callError)
		}
		return nil, OperationError{Operation: operation, Cause: callError}
	}
	if response == nil {
		return nil, OperationError{Operation: operation, Cause: errors.New(missingResponseMessageConstant)}
	}

	return response, nil
}

func (client *Client) attempt(executionContext context.Context, plan requestPlan) (*http.Response, error) {
	var requestBody io.Reader
	contentType := ""
	if plan.bodyFactory != nil {
		body, bodyContentType, bodyError := plan.bodyFactory()
		if bodyError != nil {
			return nil, bodyError
		}
		requestBody = body
		contentType = bodyContentType
	}

	requestURL := client.endpoint(plan.pathParts...)
	if len(plan.query) > 0 {
		requestURL.RawQuery = plan.query.Encode()
	}

	request, requestError := http.NewRequestWithContext(executionContext, plan.method, requestURL.String(), requestBody)
	if requestError != nil {
		if closer, closable := requestBody.(io.Closer); closable {
			_ = closer.Close()
		}
		return nil, requestError
	}

	request.Header.Set(acceptHeaderConstant, jsonMediaTypeConstant)
	if len(contentType) > 0 {
		request.Header.Set(contentTypeHeaderConstant, contentType)
	}
	if len(plan.token) > 0 {
		request.Header.Set(authenticationHeaderConstant, plan.token)
	}

	startedAt := client.clock.Now()
	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return nil, responseError
	}

	client.logger.Debug(
		logMessageRequestCompletedConstant,
		zap.String(logFieldOperationConstant, string(plan.operation)),
		zap.String(logFieldMethodConstant, plan.method),
		zap.String(logFieldPathConstant, requestURL.Path),
		zap.Int(logFieldStatusConstant, response.StatusCode),
		zap.Duration(logFieldDurationConstant, client.clock.Now().Sub(startedAt)),
	)

	if response.StatusCode >= nonSuccessStatusThresholdConstant {
		defer client.closeBody(response)
		return nil, decodeStatusError(response)
	}

	return response, nil
}

// executeJSON performs the request and decodes a JSON response into target when target is non-nil.
func (client *Client) executeJSON(executionContext context.Context, plan requestPlan, target any) error {
	response, executionError := client.execute(executionContext, plan)
	if executionError != nil {
		return executionError
	}
	defer client.closeBody(response)

	if target == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}

	if decodingError := json.NewDecoder(response.Body).Decode(target); decodingError != nil {
		return ResponseDecodingError{Operation: plan.operation, Cause: decodingError}
	}

	return nil
}

func (client *Client) closeBody(response *http.Response) {
	if response == nil || response.Body == nil {
		return
	}
	if closeError := response.Body.Close(); closeError != nil {
		client.logger.Debug(responseBodyCloseFailedMessageConstant, zap.Error(closeError))
	}
}

func newJSONBodyFactory(payload any) requestBodyFactory {
	return func() (io.ReadCloser, string, error) {
		encoded, encodingError := json.Marshal(payload)
		if encodingError != nil {
			return nil, "", encodingError
		}
		return io.NopCloser(strings.NewReader(string(encoded))), jsonMediaTypeConstant, nil
	}
}

func decodeStatusError(response *http.Response) error {
	statusError := StatusError{StatusCode: response.StatusCode}

	body, readError := io.ReadAll(io.LimitReader(response.Body, errorBodyReadLimitConstant))
	if readError != nil || len(body) == 0 {
		statusError.Summary = http.StatusText(response.StatusCode)
		return statusError
	}

	var payload errorResponsePayload
	if json.Unmarshal(body, &payload) == nil && (len(payload.Error.Summary) > 0 || len(payload.Error.Detail) > 0) {
		statusError.Code = payload.Error.Code
		statusError.Summary = payload.Error.Summary
		statusError.Detail = payload.Error.Detail
		return statusError
	}

	if response.StatusCode >= firstClientErrorStatusCodeConstant {
		statusError.Summary = strings.TrimSpace(string(body))
	}
	return statusError
}
