package enrichapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/resilience"
)

func TestPerson_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "jane@acme.com", r.URL.Query().Get("email"))
		assert.Equal(t, "abc", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"size":"11-50 employees","funding":4000000,"linkedin":"https://linkedin.com/company/acme"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"?key=abc", srv.URL)
	got, err := c.Person(context.Background(), "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, &model.CompanyProfile{
		Size:     "11-50 employees",
		Funding:  4_000_000,
		LinkedIn: "https://linkedin.com/company/acme",
	}, got)
}

func TestDomain_QueryParam(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme.com", r.URL.Query().Get("domain"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"size":"51-200","funding":"12,500,000"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	got, err := c.Domain(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "51-200", got.Size)
	assert.Equal(t, 12_500_000.0, got.Funding)
}

func TestLookup_NoData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"sentinel", "application/json", `{"message":"no-company-found"}`},
		{"non-json", "text/plain", "Accepted"},
		{"null", "application/json", "null"},
		{"empty", "application/json", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL, srv.URL).Person(context.Background(), "a@b.com")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestLookup_ErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("email") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	_, err := c.Person(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "person lookup")

	_, err = c.Domain(context.Background(), "b.com")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestLookup_NotConfigured(t *testing.T) {
	t.Parallel()
	_, err := NewClient("", "").Person(context.Background(), "a@b.com")
	assert.Error(t, err)
}

func TestLookup_BadJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"size":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.URL, WithRateLimit(100)).Domain(context.Background(), "b.com")
	assert.Error(t, err)
}

func TestParseFunding(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, parseFunding(nil))
	assert.Equal(t, 5e6, parseFunding([]byte(`5000000`)))
	assert.Equal(t, 5e6, parseFunding([]byte(`"$5,000,000"`)))
	assert.Equal(t, 0.0, parseFunding([]byte(`"unknown"`)))
	assert.Equal(t, 0.0, parseFunding([]byte(`null`)))
}
