/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/testutil"

	"github.com/acronis/go-admitkit/ratelimit"
)

func TestAdmissionMiddleware(t *testing.T) {
	const errDomain = "MyService"

	makeNext := func() (next http.HandlerFunc, servedCount *atomic.Int32) {
		servedCount = atomic.NewInt32(0)
		next = func(rw http.ResponseWriter, r *http.Request) {
			servedCount.Inc()
			rw.WriteHeader(http.StatusOK)
		}
		return
	}

	makeRegistry := func(t *testing.T, maxRate ratelimit.Rate, clients ...string) (*Registry, *mockClock) {
		t.Helper()
		clock := newMockClock()
		template, err := ratelimit.NewTokenBucketWithOpts(maxRate, ratelimit.TokenBucketOpts{Clock: clock})
		require.NoError(t, err)
		return NewRegistry(clients, template), clock
	}

	sendReq := func(handler http.Handler, clientID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if clientID != "" {
			req.Header.Set(DefaultClientIDHeader, clientID)
		}
		respRec := httptest.NewRecorder()
		handler.ServeHTTP(respRec, req)
		return respRec
	}

	t.Run("admits recognized client within rate", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 2, Duration: time.Hour}, "alpha")
		next, servedCount := makeNext()
		handler := Middleware(registry, errDomain)(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, 2, int(servedCount.Load()))
	})

	t.Run("rejects rate-limited client with 429 and Retry-After", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Minute}, "alpha")
		next, servedCount := makeNext()
		handler := Middleware(registry, errDomain)(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)

		respRec := sendReq(handler, "alpha")
		testutil.RequireErrorInRecorder(t, respRec, http.StatusTooManyRequests, errDomain, RateLimitErrCode)
		retryAfterSecs, err := strconv.Atoi(respRec.Header().Get("Retry-After"))
		require.NoError(t, err)
		require.Greater(t, retryAfterSecs, 0)
		require.Equal(t, 1, int(servedCount.Load()))
	})

	t.Run("rejects unknown client with 403", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Minute}, "alpha")
		next, servedCount := makeNext()
		handler := Middleware(registry, errDomain)(next)

		respRec := sendReq(handler, "not-a-real-client")
		testutil.RequireErrorInRecorder(t, respRec, http.StatusForbidden, errDomain, UnknownClientErrCode)

		// Missing header yields an empty identifier, which is never a member.
		respRec = sendReq(handler, "")
		testutil.RequireErrorInRecorder(t, respRec, http.StatusForbidden, errDomain, UnknownClientErrCode)
		require.Equal(t, 0, int(servedCount.Load()))
	})

	t.Run("recovers after refill", func(t *testing.T) {
		registry, clock := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Second}, "alpha")
		next, _ := makeNext()
		handler := Middleware(registry, errDomain)(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusTooManyRequests, sendReq(handler, "alpha").Code)
		clock.Advance(time.Second)
		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
	})

	t.Run("trusted clients bypass admission control", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, servedCount := makeNext()
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			TrustedClients: []string{"internal-*"},
		})(next)

		// Not a registry member, matches the trusted pattern, never limited.
		for i := 0; i < 5; i++ {
			require.Equal(t, http.StatusOK, sendReq(handler, "internal-monitoring").Code)
		}
		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusTooManyRequests, sendReq(handler, "alpha").Code)
		require.Equal(t, 6, int(servedCount.Load()))
	})

	t.Run("custom client id header", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, _ := makeNext()
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			ClientIDHeader: "X-Tenant-ID",
		})(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "alpha")
		respRec := httptest.NewRecorder()
		handler.ServeHTTP(respRec, req)
		require.Equal(t, http.StatusOK, respRec.Code)
	})

	t.Run("custom get client id func", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, _ := makeNext()
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			GetClientID: func(r *http.Request) (string, bool, error) {
				return r.URL.Query().Get("client"), false, nil
			},
		})(next)

		req := httptest.NewRequest(http.MethodGet, "/?client=alpha", nil)
		respRec := httptest.NewRecorder()
		handler.ServeHTTP(respRec, req)
		require.Equal(t, http.StatusOK, respRec.Code)
	})

	t.Run("get client id error", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, servedCount := makeNext()
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			GetClientID: func(r *http.Request) (string, bool, error) {
				return "", false, fmt.Errorf("malformed credentials")
			},
		})(next)

		respRec := sendReq(handler, "alpha")
		require.Equal(t, http.StatusInternalServerError, respRec.Code)
		require.Equal(t, 0, int(servedCount.Load()))
	})

	t.Run("custom response status codes", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, _ := makeNext()
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			ResponseStatusCode:      http.StatusServiceUnavailable,
			UnknownClientStatusCode: http.StatusNotFound,
		})(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusServiceUnavailable, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusNotFound, sendReq(handler, "not-a-real-client").Code)
	})

	t.Run("custom on reject callback", func(t *testing.T) {
		registry, _ := makeRegistry(t, ratelimit.Rate{Count: 1, Duration: time.Hour}, "alpha")
		next, _ := makeNext()
		var gotParams Params
		handler := MiddlewareWithOpts(registry, errDomain, MiddlewareOpts{
			OnReject: func(rw http.ResponseWriter, r *http.Request, params Params, _ http.Handler, _ log.FieldLogger) {
				gotParams = params
				rw.WriteHeader(http.StatusTeapot)
			},
		})(next)

		require.Equal(t, http.StatusOK, sendReq(handler, "alpha").Code)
		require.Equal(t, http.StatusTeapot, sendReq(handler, "alpha").Code)
		require.Equal(t, "alpha", gotParams.ClientID)
		require.Equal(t, ResultRateLimited, gotParams.Result)
		require.Greater(t, gotParams.EstimatedRetryAfter, time.Duration(0))
	})
}
