/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"
)

// Error codes that are used in response bodies for rejected requests.
const (
	// RateLimitErrCode is an error code for requests rejected due to the exhausted rate limit.
	RateLimitErrCode = "tooManyRequests"

	// UnknownClientErrCode is an error code for requests from unrecognized clients.
	UnknownClientErrCode = "unknownClient"
)

// ClientIDLogFieldKey is the name of the logged field that contains the client identifier.
const ClientIDLogFieldKey = "admission_client_id"

const userAgentLogFieldKey = "user_agent"

// DefaultClientIDHeader is a name of the request header which value is used
// as a client identifier when GetClientID is not specified.
const DefaultClientIDHeader = "X-Client-ID"

// Params contains data that relates to the admission decision
// and could be used for rejecting or handling an occurred error.
// Result and EstimatedRetryAfter are meaningful only in the OnReject
// and OnUnknownClient callbacks.
type Params struct {
	ErrDomain           string
	ResponseStatusCode  int
	GetRetryAfter       GetRetryAfterFunc
	ClientID            string
	Result              Result
	EstimatedRetryAfter time.Duration
}

// GetRetryAfterFunc is a function that is called to get a value for Retry-After response HTTP header
// when the rate limit is exceeded.
type GetRetryAfterFunc func(r *http.Request, estimatedTime time.Duration) time.Duration

// OnRejectFunc is a function that is called for rejecting HTTP request
// when the rate limit is exceeded or the client is not recognized.
type OnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params Params, next http.Handler, logger log.FieldLogger)

// OnErrorFunc is a function that is called in case of any error that may occur during the admission decision.
type OnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params Params, err error, next http.Handler, logger log.FieldLogger)

// GetClientIDFunc is a function that is called for getting the client identifier from the request.
// The returned bypass flag allows skipping admission control for this request entirely.
type GetClientIDFunc func(r *http.Request) (clientID string, bypass bool, err error)

// MiddlewareOpts represents an options for the admission Middleware.
type MiddlewareOpts struct {
	// GetClientID extracts the client identifier from the request.
	// By default, the trimmed value of the X-Client-ID header is used.
	GetClientID GetClientIDFunc

	// ClientIDHeader is a name of the request header which value is used as a client identifier.
	// Matters only when GetClientID is not specified.
	ClientIDHeader string

	// TrustedClients is a list of glob patterns. Requests from matched client
	// identifiers bypass admission control entirely.
	TrustedClients []string

	// ResponseStatusCode is an HTTP status code for rate-limited responses.
	// 429 is used if it's not specified.
	ResponseStatusCode int

	// UnknownClientStatusCode is an HTTP status code for unknown-client responses.
	// 403 is used if it's not specified.
	UnknownClientStatusCode int

	// GetRetryAfter is a function to get a value for Retry-After response header.
	// The estimated time from the client's limiter is used if it's not specified.
	GetRetryAfter GetRetryAfterFunc

	// OnReject is a callback that is called for rejecting HTTP request when the rate limit is exceeded.
	OnReject OnRejectFunc

	// OnUnknownClient is a callback that is called for rejecting HTTP request from an unrecognized client.
	OnUnknownClient OnRejectFunc

	// OnError is a callback that is called in case of any error that may occur during the admission decision.
	OnError OnErrorFunc
}

// Middleware is a middleware that admits or rejects incoming HTTP requests
// based on the per-client rate limits of the passed registry.
func Middleware(registry *Registry, errDomain string) func(next http.Handler) http.Handler {
	return MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{})
}

// MiddlewareWithOpts is a more configurable version of Middleware.
func MiddlewareWithOpts(registry *Registry, errDomain string, opts MiddlewareOpts) func(next http.Handler) http.Handler {
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	unknownStatusCode := opts.UnknownClientStatusCode
	if unknownStatusCode == 0 {
		unknownStatusCode = http.StatusForbidden
	}
	getRetryAfter := opts.GetRetryAfter
	if getRetryAfter == nil {
		getRetryAfter = GetRetryAfterEstimatedTime
	}
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultOnReject
	}
	onUnknownClient := opts.OnUnknownClient
	if onUnknownClient == nil {
		onUnknownClient = DefaultOnUnknownClient
	}
	onError := opts.OnError
	if onError == nil {
		onError = DefaultOnError
	}

	return func(next http.Handler) http.Handler {
		return &admissionHandler{
			next:              next,
			registry:          registry,
			getClientID:       makeGetClientIDFunc(opts),
			errDomain:         errDomain,
			respStatusCode:    respStatusCode,
			unknownStatusCode: unknownStatusCode,
			getRetryAfter:     getRetryAfter,
			onReject:          onReject,
			onUnknownClient:   onUnknownClient,
			onError:           onError,
		}
	}
}

type admissionHandler struct {
	next              http.Handler
	registry          *Registry
	getClientID       GetClientIDFunc
	errDomain         string
	respStatusCode    int
	unknownStatusCode int
	getRetryAfter     GetRetryAfterFunc

	onReject        OnRejectFunc
	onUnknownClient OnRejectFunc
	onError         OnErrorFunc
}

func (h *admissionHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	clientID, bypass, err := h.getClientID(r)
	if err != nil {
		h.onError(rw, r, Params{
			ErrDomain:          h.errDomain,
			ResponseStatusCode: http.StatusInternalServerError,
			GetRetryAfter:      h.getRetryAfter,
			ClientID:           clientID,
		}, fmt.Errorf("get client id for admission: %w", err), h.next, logger)
		return
	}
	if bypass { // Admission control is bypassed for this request.
		h.next.ServeHTTP(rw, r)
		return
	}

	switch result := h.registry.Evaluate(clientID); result {
	case ResultAdmitted:
		h.next.ServeHTTP(rw, r)
	case ResultRateLimited:
		h.onReject(rw, r,
			h.makeParams(clientID, result, h.respStatusCode, h.registry.EstimateRetryAfter(clientID)), h.next, logger)
	case ResultUnknownClient:
		h.onUnknownClient(rw, r, h.makeParams(clientID, result, h.unknownStatusCode, 0), h.next, logger)
	}
}

func (h *admissionHandler) makeParams(
	clientID string, result Result, respStatusCode int, estimatedRetryAfter time.Duration,
) Params {
	return Params{
		ErrDomain:           h.errDomain,
		ResponseStatusCode:  respStatusCode,
		GetRetryAfter:       h.getRetryAfter,
		ClientID:            clientID,
		Result:              result,
		EstimatedRetryAfter: estimatedRetryAfter,
	}
}

// GetRetryAfterEstimatedTime returns estimated time after that the client may retry the request.
func GetRetryAfterEstimatedTime(_ *http.Request, estimatedTime time.Duration) time.Duration {
	return estimatedTime
}

// DefaultOnReject sends HTTP response in a typical go-appkit way when the rate limit is exceeded.
func DefaultOnReject(
	rw http.ResponseWriter, r *http.Request, params Params, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(ClientIDLogFieldKey, params.ClientID),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.GetRetryAfter != nil {
		rw.Header().Set("Retry-After",
			strconv.Itoa(int(math.Ceil(params.GetRetryAfter(r, params.EstimatedRetryAfter).Seconds()))))
	}
	apiErr := restapi.NewError(params.ErrDomain, RateLimitErrCode, "Too many requests.")
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultOnUnknownClient sends HTTP response in a typical go-appkit way
// when the client identifier is not recognized.
func DefaultOnUnknownClient(
	rw http.ResponseWriter, r *http.Request, params Params, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.String(ClientIDLogFieldKey, params.ClientID),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	apiErr := restapi.NewError(params.ErrDomain, UnknownClientErrCode, "Unknown client.")
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultOnError sends HTTP response in a typical go-appkit way in case when an error occurs
// during the admission decision.
func DefaultOnError(
	rw http.ResponseWriter, r *http.Request, params Params, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error(err.Error(), log.String(ClientIDLogFieldKey, params.ClientID))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

func makeGetClientIDFunc(opts MiddlewareOpts) GetClientIDFunc {
	getClientID := opts.GetClientID
	if getClientID == nil {
		headerName := opts.ClientIDHeader
		if headerName == "" {
			headerName = DefaultClientIDHeader
		}
		getClientID = func(r *http.Request) (string, bool, error) {
			return strings.TrimSpace(r.Header.Get(headerName)), false, nil
		}
	}

	if len(opts.TrustedClients) == 0 {
		return getClientID
	}

	compiledPatterns := make([]func(s string) bool, 0, len(opts.TrustedClients))
	for _, pattern := range opts.TrustedClients {
		compiledPatterns = append(compiledPatterns, glob.Compile(pattern))
	}
	return func(r *http.Request) (string, bool, error) {
		clientID, bypass, err := getClientID(r)
		if err != nil || bypass {
			return clientID, bypass, err
		}
		for i := range compiledPatterns {
			if compiledPatterns[i](clientID) {
				return clientID, true, nil
			}
		}
		return clientID, false, nil
	}
}
