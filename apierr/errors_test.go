package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"401", &StatusError{Code: 401}, ErrAuth},
		{"403", &StatusError{Code: 403}, ErrAccessDenied},
		{"404", &StatusError{Code: 404}, ErrNotFound},
		{"408", &StatusError{Code: 408}, ErrTimeout},
		{"409", &StatusError{Code: 409}, ErrRejected},
		{"429", &StatusError{Code: 429}, ErrThrottled},
		{"503", &StatusError{Code: 503}, ErrServer},
		{"wrapped 500", fmt.Errorf("init: %w", &StatusError{Code: 500}), ErrServer},
		{"canceled", context.Canceled, ErrCanceled},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrNetwork},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), ErrNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.invalid", IsNotFound: true}, ErrNetwork},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrNetwork},
		{"message timeout", errors.New("i/o timeout"), ErrTimeout},
		{"other", errors.New("bad json"), ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"500", &StatusError{Code: 500}, true},
		{"502", &StatusError{Code: 502}, true},
		{"429", &StatusError{Code: 429}, true},
		{"408", &StatusError{Code: 408}, true},
		{"400", &StatusError{Code: 400}, false},
		{"401", &StatusError{Code: 401}, false},
		{"403", &StatusError{Code: 403}, false},
		{"404", &StatusError{Code: 404}, false},
		{"refused", syscall.ECONNREFUSED, true},
		{"canceled", context.Canceled, false},
		{"decode", errors.New("invalid character 'x'"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError_Is(t *testing.T) {
	err := fmt.Errorf("complete: %w", &StatusError{Method: "POST", URL: "http://x/v1", Code: 401, Body: "nope"})
	if !errors.Is(err, ErrAuth) {
		t.Error("expected errors.Is(err, ErrAuth)")
	}
	if errors.Is(err, ErrServer) {
		t.Error("401 should not match ErrServer")
	}
	if !strings.Contains(err.Error(), "HTTP 401: nope") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", MaxBodyBytes+100)))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/deployments/status/b1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	se := FromResponse(resp)
	if se.Code != http.StatusBadGateway || se.Method != http.MethodGet {
		t.Errorf("StatusError = %+v", se)
	}
	if len(se.Body) != MaxBodyBytes {
		t.Errorf("body len = %d, want %d", len(se.Body), MaxBodyBytes)
	}
	if !strings.HasSuffix(se.URL, "/v1/deployments/status/b1") {
		t.Errorf("URL = %q", se.URL)
	}
}

func TestContextualize(t *testing.T) {
	tests := []struct {
		name     string
		ctx      Context
		err      error
		wantCtx  Context
		wantKind error
		wantMsg  string
	}{
		{"auth", ContextAuthentication, &StatusError{Code: 401}, ContextAuthentication, ErrAuth, "token was rejected"},
		{"not found deployment", ContextDeployment, &StatusError{Code: 404}, ContextDeployment, ErrNotFound, "deployment not found"},
		{"network", ContextDeployment, syscall.ECONNREFUSED, ContextNetwork, ErrNetwork, "could not reach"},
		{"server", ContextDeployment, &StatusError{Code: 503}, ContextDeployment, ErrServer, "service returned an error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contextualize(tt.ctx, tt.err)
			var e *Error
			if !errors.As(got, &e) {
				t.Fatalf("Contextualize returned %T", got)
			}
			if e.Context != tt.wantCtx {
				t.Errorf("Context = %q, want %q", e.Context, tt.wantCtx)
			}
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("expected kind %v", tt.wantKind)
			}
			if !errors.Is(got, tt.err) {
				t.Error("cause should remain in the chain")
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", e.Message, tt.wantMsg)
			}
		})
	}
}

func TestContextualize_Idempotent(t *testing.T) {
	first := Contextualize(ContextAuthentication, &StatusError{Code: 401})
	second := Contextualize(ContextDeployment, first)
	if first != second {
		t.Error("already-contextualized error should pass through")
	}
	if Contextualize(ContextDeployment, nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestError_Detail(t *testing.T) {
	e := Validation("project id is not configured", "set project.id in hoist.yaml")
	detail := e.Detail()
	if !strings.Contains(detail, "project id is not configured") || !strings.Contains(detail, "set project.id") {
		t.Errorf("Detail() = %q", detail)
	}
	if Filesystem("read", "/x", nil) != nil {
		t.Error("Filesystem(nil) should be nil")
	}
}
