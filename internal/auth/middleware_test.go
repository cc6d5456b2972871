package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAPIKeyStore struct {
	keys map[string]*storage.APIKey
}

func (m *mockAPIKeyStore) CreateAPIKey(ctx context.Context, name string, roles []string) (string, error) {
	return "", nil
}

func (m *mockAPIKeyStore) ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error) {
	if apiKey, ok := m.keys[key]; ok {
		return apiKey, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockAPIKeyStore) ListAPIKeys(ctx context.Context) ([]storage.APIKey, error) {
	return nil, nil
}

func (m *mockAPIKeyStore) RevokeAPIKey(ctx context.Context, id string) error {
	return nil
}

func TestMiddleware_ValidKey(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{
			"pk_key_valid": {ID: "key-123", Name: "test", Roles: []string{"oracle"}},
		},
	}

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	middleware := Middleware(store, func(w http.ResponseWriter, status int, code, message string) {
		w.WriteHeader(status)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "pk_key_valid")
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	apiKey := GetAPIKeyFromContext(capturedCtx)
	require.NotNil(t, apiKey)
	assert.Equal(t, "key-123", apiKey.ID)

	caller := CallerFromContext(capturedCtx)
	assert.Equal(t, "key-123", caller.ID)
	assert.True(t, caller.Has(domain.RoleOracle))
}

func TestMiddleware_InvalidKey(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := Middleware(store, func(w http.ResponseWriter, status int, code, message string) {
		w.WriteHeader(status)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "pk_key_invalid")
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MissingKey(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := Middleware(store, func(w http.ResponseWriter, status int, code, message string) {
		w.WriteHeader(status)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_BearerToken(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{
			"pk_key_bearer": {ID: "key-456", Name: "bearer-test"},
		},
	}

	var capturedCtx context.Context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	})

	middleware := Middleware(store, func(w http.ResponseWriter, status int, code, message string) {
		w.WriteHeader(status)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer pk_key_bearer")
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	apiKey := GetAPIKeyFromContext(capturedCtx)
	require.NotNil(t, apiKey)
	assert.Equal(t, "key-456", apiKey.ID)
}

func TestOptionalMiddleware(t *testing.T) {
	store := &mockAPIKeyStore{
		keys: map[string]*storage.APIKey{
			"pk_key_valid": {ID: "key-123", Name: "test", Roles: []string{"staker"}},
		},
	}

	tests := []struct {
		name       string
		key        string
		wantCaller string
	}{
		{name: "no key", key: "", wantCaller: "anonymous"},
		{name: "invalid key", key: "pk_key_nope", wantCaller: "anonymous"},
		{name: "valid key", key: "pk_key_valid", wantCaller: "key-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller domain.Caller
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				caller = CallerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			OptionalMiddleware(store)(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantCaller, caller.ID)
		})
	}
}

func TestDisabled(t *testing.T) {
	var caller domain.Caller
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
	})

	Disabled(domain.SystemCaller())(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))

	assert.Equal(t, "system", caller.ID)
	assert.True(t, caller.Has(domain.RoleGovernance))
}

func TestCallerFromKey(t *testing.T) {
	caller := CallerFromKey(&storage.APIKey{ID: "key-1", Roles: []string{"oracle", "admin", "staker"}})
	assert.Equal(t, "key-1", caller.ID)
	assert.Equal(t, []domain.Role{domain.RoleOracle, domain.RoleStaker}, caller.Roles)
	assert.False(t, caller.Has(domain.RoleGovernance))
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{input: "oracle", want: []string{"oracle"}},
		{input: "oracle, staker", want: []string{"oracle", "staker"}},
		{input: "all", want: []string{"oracle", "governance", "staker", "depositor", "burner", "vault"}},
		{input: "", wantErr: true},
		{input: "oracle,root", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRoles(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
