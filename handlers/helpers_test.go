package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/ats-backend/middleware"
	"github.com/talentflow/ats-backend/models"
)

const testSecret = "handler-secret"

type staticLoader map[uuid.UUID]*models.CurrentUser

func (l staticLoader) LoadUser(_ context.Context, userID uuid.UUID) (*models.CurrentUser, error) {
	return l[userID], nil
}

func testUser(role string, company *uuid.UUID) *models.CurrentUser {
	return &models.CurrentUser{
		UserID:    uuid.New(),
		Email:     role + "@example.com",
		Role:      role,
		CompanyID: company,
	}
}

func bearer(t *testing.T, user *models.CurrentUser) string {
	t.Helper()
	token, _, err := middleware.GenerateToken(*user, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
}

func tenantMiddleware(users ...*models.CurrentUser) fiber.Handler {
	loader := staticLoader{}
	for _, u := range users {
		loader[u.UserID] = u
	}
	return middleware.TenantContext(testSecret, loader)
}

type testResponse struct {
	Status  int
	Header  http.Header
	Body    map[string]interface{}
	RawBody []byte
}

func send(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) testResponse {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := testResponse{Status: resp.StatusCode, Header: resp.Header, RawBody: raw}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out.Body))
	}
	return out
}
