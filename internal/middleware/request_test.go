package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gqlpipeline/internal/dbexec"
	"gqlpipeline/internal/pipeline"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRequestBindingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
	}{
		{name: "no header", header: "", wantToken: ""},
		{name: "bearer scheme", header: "Bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", wantToken: "abc.def.ghi"},
		{name: "bare token", header: "abc.def.ghi", wantToken: "abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bound *pipeline.Request
			handler := RequestBindingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				req, ok := pipeline.RequestFromContext(r.Context())
				if !ok {
					t.Fatal("expected request record in context")
				}
				bound = req
			}))

			r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), r)

			if bound == nil {
				t.Fatal("handler was not invoked")
			}
			if bound.Token != tt.wantToken {
				t.Errorf("token = %q, want %q", bound.Token, tt.wantToken)
			}
		})
	}
}

func TestRequestBindingMiddlewareFreshRecordPerRequest(t *testing.T) {
	var seen []*pipeline.Request
	handler := RequestBindingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, _ := pipeline.RequestFromContext(r.Context())
		seen = append(seen, req)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))
	}

	if len(seen) != 2 || seen[0] == seen[1] {
		t.Fatal("expected a distinct request record per HTTP request")
	}
}

func TestRequestBindingMiddlewareReleasesOwnedExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	source := dbexec.NewSource(db, dbexec.Options{})
	var owned *dbexec.Executor
	handler := RequestBindingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, _ := pipeline.RequestFromContext(r.Context())
		exec, err := source.Acquire(r.Context())
		if err != nil {
			t.Fatalf("failed to acquire executor: %v", err)
		}
		owned = exec
		req.AdoptExecutor(exec, true)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))

	if owned == nil {
		t.Fatal("handler was not invoked")
	}
	if _, err := owned.QueryContext(context.Background(), "SELECT 1"); err == nil {
		t.Error("expected the pipeline-owned handle to be closed after the request")
	}

	// A caller-supplied handle must survive the boundary untouched.
	supplied := dbexec.NewExecutor(db, dbexec.Options{})
	handler = RequestBindingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, _ := pipeline.RequestFromContext(r.Context())
		req.AdoptExecutor(supplied, false)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows, err := supplied.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("caller-supplied handle must stay usable: %v", err)
	}
	_ = rows.Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
