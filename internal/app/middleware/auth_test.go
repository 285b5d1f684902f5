package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*services.TokenClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TokenClaims), args.Error(1)
}

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) List(ctx context.Context, params repositories.ListParams) ([]models.Tenant, int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]models.Tenant), args.Get(1).(int64), args.Error(2)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, params repositories.ListParams) ([]models.User, int64, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]models.User), args.Get(1).(int64), args.Error(2)
}

type authFixture struct {
	validator *MockTokenValidator
	tenants   *MockTenantRepository
	users     *MockUserRepository
	router    *gin.Engine
}

func newAuthFixture() *authFixture {
	gin.SetMode(gin.TestMode)
	f := &authFixture{
		validator: new(MockTokenValidator),
		tenants:   new(MockTenantRepository),
		users:     new(MockUserRepository),
		router:    gin.New(),
	}
	f.router.Use(AuthMiddleware(AuthConfig{
		Validator:    f.validator,
		Tenants:      f.tenants,
		Users:        f.users,
		TenantHeader: "X-Tenant-Subdomain",
		Logger:       logger.NewForTesting(),
	}))
	f.router.GET("/whoami", func(c *gin.Context) {
		user := GetUserContext(c)
		scope, err := tenant.Require(c.Request.Context())
		if err != nil || scope != user.TenantID {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, user)
	})
	return f
}

func (f *authFixture) do(header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestAuthMiddleware_TenantFromToken(t *testing.T) {
	f := newAuthFixture()
	tn := &models.Tenant{ID: uuid.New(), Subdomain: "acme", IsActive: true}
	user := &models.User{ID: uuid.New(), TenantID: tn.ID, Email: "alice@example.com", IsActive: true}

	f.validator.On("ValidateToken", mock.Anything, "good").
		Return(&services.TokenClaims{Email: user.Email, TenantID: tn.ID}, nil)
	f.tenants.On("GetByID", mock.Anything, tn.ID).Return(tn, nil)
	f.users.On("GetByEmail", mock.MatchedBy(func(ctx context.Context) bool {
		scope, err := tenant.Require(ctx)
		return err == nil && scope == tn.ID
	}), user.Email).Return(user, nil)

	w := f.do(map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusOK, w.Code)

	var got UserContext
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, UserContext{UserID: user.ID, TenantID: tn.ID, Email: user.Email}, got)
	f.tenants.AssertNotCalled(t, "GetBySubdomain", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_TenantFromHeader(t *testing.T) {
	f := newAuthFixture()
	tn := &models.Tenant{ID: uuid.New(), Subdomain: "acme", IsActive: true}
	user := &models.User{ID: uuid.New(), TenantID: tn.ID, Email: "alice@example.com", IsActive: true}

	f.validator.On("ValidateToken", mock.Anything, "good").
		Return(&services.TokenClaims{Email: user.Email}, nil)
	f.tenants.On("GetBySubdomain", mock.Anything, "acme").Return(tn, nil)
	f.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)

	w := f.do(map[string]string{"Authorization": "Bearer good", "X-Tenant-Subdomain": " ACME "})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tenantID := uuid.New()
	active := &models.Tenant{ID: tenantID, Subdomain: "acme", IsActive: true}

	tests := []struct {
		name   string
		header map[string]string
		setup  func(f *authFixture)
		status int
		code   string
	}{
		{
			name:   "missing header",
			header: map[string]string{},
			status: http.StatusUnauthorized,
			code:   "missing_authorization",
		},
		{
			name:   "not bearer",
			header: map[string]string{"Authorization": "Basic abc"},
			status: http.StatusUnauthorized,
			code:   "invalid_authorization_format",
		},
		{
			name:   "invalid token",
			header: map[string]string{"Authorization": "Bearer bad"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "bad").Return(nil, errors.New("expired"))
			},
			status: http.StatusUnauthorized,
			code:   "invalid_token",
		},
		{
			name:   "no tenant anywhere",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com"}, nil)
			},
			status: http.StatusBadRequest,
			code:   "missing_tenant",
		},
		{
			name:   "unknown tenant",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com", TenantID: tenantID}, nil)
				f.tenants.On("GetByID", mock.Anything, tenantID).Return(nil, repositories.ErrNotFound)
			},
			status: http.StatusNotFound,
			code:   "tenant_not_found",
		},
		{
			name:   "inactive tenant",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com", TenantID: tenantID}, nil)
				f.tenants.On("GetByID", mock.Anything, tenantID).Return(&models.Tenant{ID: tenantID}, nil)
			},
			status: http.StatusForbidden,
			code:   "tenant_inactive",
		},
		{
			name:   "user outside tenant",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com", TenantID: tenantID}, nil)
				f.tenants.On("GetByID", mock.Anything, tenantID).Return(active, nil)
				f.users.On("GetByEmail", mock.Anything, "a@example.com").Return(nil, repositories.ErrNotFound)
			},
			status: http.StatusUnauthorized,
			code:   "user_not_found",
		},
		{
			name:   "inactive user",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com", TenantID: tenantID}, nil)
				f.tenants.On("GetByID", mock.Anything, tenantID).Return(active, nil)
				f.users.On("GetByEmail", mock.Anything, "a@example.com").Return(&models.User{ID: uuid.New(), Email: "a@example.com"}, nil)
			},
			status: http.StatusUnauthorized,
			code:   "user_inactive",
		},
		{
			name:   "tenant lookup failure",
			header: map[string]string{"Authorization": "Bearer t"},
			setup: func(f *authFixture) {
				f.validator.On("ValidateToken", mock.Anything, "t").Return(&services.TokenClaims{Email: "a@example.com", TenantID: tenantID}, nil)
				f.tenants.On("GetByID", mock.Anything, tenantID).Return(nil, errors.New("connection reset"))
			},
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			w := f.do(tt.header)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestGetUserContext_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetUserContext(c))

	c.Set(userContextKey, "not a user")
	assert.Nil(t, GetUserContext(c))
}
