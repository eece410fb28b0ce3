package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InverskProperty/propsk-sub012/internal/logger"
	"github.com/InverskProperty/propsk-sub012/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestContext creates a test Gin context with logger and request ID in context.
func setupTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/portfolios/1/assignments", nil)
	c.Set("logger", logger.Nop())
	c.Set(middleware.RequestIDKey, "test-request-id")
	return c, w
}

func parseErrorResponse(t *testing.T, body *bytes.Buffer) ErrorResponse {
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(body.Bytes(), &response), "Failed to parse error response JSON")
	return response
}

func TestResponders(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c *gin.Context)
		status  int
		code    string
		message string
	}{
		{"not found", func(c *gin.Context) { NotFound(c, "Portfolio not found") }, http.StatusNotFound, ErrNotFound, "Portfolio not found"},
		{"bad request", func(c *gin.Context) { BadRequest(c, "Invalid input", nil) }, http.StatusBadRequest, ErrBadRequest, "Invalid input"},
		{"conflict", func(c *gin.Context) { Conflict(c, "Block is full") }, http.StatusConflict, ErrConflict, "Block is full"},
		{"bad gateway", func(c *gin.Context) { BadGateway(c, "Tag platform unavailable", errors.New("503")) }, http.StatusBadGateway, ErrIntegration, "Tag platform unavailable"},
		{"unavailable", func(c *gin.Context) { ServiceUnavailable(c, "Not ready", errors.New("ping")) }, http.StatusServiceUnavailable, ErrUnavailable, "Not ready"},
		{"internal", func(c *gin.Context) { InternalServerError(c, "An unexpected error occurred", errors.New("db gone")) }, http.StatusInternalServerError, ErrInternalServer, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTestContext()

			tt.call(c)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			response := parseErrorResponse(t, w.Body)
			assert.Equal(t, tt.code, response.Error.Code)
			assert.Equal(t, tt.message, response.Error.Message)
			assert.Equal(t, "test-request-id", response.Error.RequestID)
			assert.Nil(t, response.Error.Details)
		})
	}
}

func TestInternalServerError_DoesNotLeakCause(t *testing.T) {
	c, w := setupTestContext()

	InternalServerError(c, "An unexpected error occurred", errors.New("password authentication failed"))

	assert.NotContains(t, w.Body.String(), "password")
}

func TestBadRequest_WithDetails(t *testing.T) {
	c, w := setupTestContext()

	BadRequest(c, "Invalid input", map[string]interface{}{"field": "propertyIds"})

	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, "propertyIds", response.Error.Details["field"])
}

func TestValidationError(t *testing.T) {
	c, w := setupTestContext()

	type request struct {
		PropertyIDs []int64 `validate:"required,min=1"`
		Name        string  `validate:"required,max=5"`
	}
	err := validator.New().Struct(request{Name: "too long"})
	require.Error(t, err)
	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	ValidationError(c, validationErrors)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Equal(t, ErrValidation, response.Error.Code)
	assert.Equal(t, "This field is required", response.Error.Details["PropertyIDs"])
	assert.Equal(t, "Value is too long or large (maximum: 5)", response.Error.Details["Name"])
}

func TestFormatValidationError(t *testing.T) {
	tests := []struct {
		tag      string
		param    string
		expected string
	}{
		{"required", "", "This field is required"},
		{"min", "1", "Value is too short or small (minimum: 1)"},
		{"max", "255", "Value is too long or large (maximum: 255)"},
		{"gt", "0", "Must be greater than 0"},
		{"gte", "0", "Must be greater than or equal to 0"},
		{"oneof", "building estate other", "Must be one of: building estate other"},
		{"dive", "", "Every element must be valid"},
		{"unknown_tag", "", "Validation failed for tag: unknown_tag"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValidationError(&mockFieldError{tag: tt.tag, param: tt.param}))
		})
	}
}

func TestErrorResponseWithoutContext(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	NotFound(c, "Block not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	response := parseErrorResponse(t, w.Body)
	assert.Empty(t, response.Error.RequestID)
}

// mockFieldError is a mock implementation of validator.FieldError for testing.
type mockFieldError struct {
	tag   string
	param string
}

func (m *mockFieldError) Tag() string                    { return m.tag }
func (m *mockFieldError) ActualTag() string              { return m.tag }
func (m *mockFieldError) Namespace() string              { return "" }
func (m *mockFieldError) StructNamespace() string        { return "" }
func (m *mockFieldError) Field() string                  { return "TestField" }
func (m *mockFieldError) StructField() string            { return "TestField" }
func (m *mockFieldError) Value() interface{}             { return nil }
func (m *mockFieldError) Param() string                  { return m.param }
func (m *mockFieldError) Kind() reflect.Kind             { return reflect.String }
func (m *mockFieldError) Type() reflect.Type             { return nil }
func (m *mockFieldError) Translate(ut.Translator) string { return "" }
func (m *mockFieldError) Error() string                  { return "" }
