package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthcheckCommand(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		expectError bool
	}{
		{name: "healthy", status: http.StatusOK, expectError: false},
		{name: "unhealthy", status: http.StatusServiceUnavailable, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			root := newRootCommand()
			buf := new(bytes.Buffer)
			root.SetOut(buf)
			root.SetErr(buf)
			root.SetArgs([]string{"healthcheck", "--url", srv.URL + "/healthz"})

			err := root.Execute()
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHealthcheckCommandUnreachable(t *testing.T) {
	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"healthcheck", "--url", "http://127.0.0.1:1/healthz"})

	if err := root.Execute(); err == nil {
		t.Error("expected error for unreachable server, got nil")
	}
}
