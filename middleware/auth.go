package middleware

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/database"
	"github.com/talentflow/ats-backend/models"
)

const (
	currentUserKey = "currentUser"
	companyIDKey   = "companyId"
)

// Claims represents the JWT claims
type Claims struct {
	Email        string  `json:"email"`
	CompanyID    *string `json:"company_id"`
	IsSuperAdmin bool    `json:"is_super_admin"`
	Role         string  `json:"rol"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for user
func GenerateToken(user models.CurrentUser, secret string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)

	claims := Claims{
		Email:        user.Email,
		IsSuperAdmin: user.IsSuperAdmin,
		Role:         user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if user.CompanyID != nil {
		company := user.CompanyID.String()
		claims.CompanyID = &company
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// UserLoader resolves the user behind a token. It returns nil without an
// error when the user is unknown, inactive or has not accepted the invitation.
type UserLoader interface {
	LoadUser(ctx context.Context, userID uuid.UUID) (*models.CurrentUser, error)
}

// DBUserLoader reads users from Postgres
type DBUserLoader struct {
	DB database.Querier
}

func (l DBUserLoader) LoadUser(ctx context.Context, userID uuid.UUID) (*models.CurrentUser, error) {
	var user models.CurrentUser
	var active, accepted bool
	err := l.DB.QueryRowContext(ctx, `
		SELECT user_id, email, nombre, rol, company_id, is_super_admin, activo, invitacion_aceptada
		FROM users
		WHERE user_id = $1
		LIMIT 1
	`, userID).Scan(
		&user.UserID, &user.Email, &user.Name, &user.Role, &user.CompanyID, &user.IsSuperAdmin, &active, &accepted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !active || !accepted {
		return nil, nil
	}
	return &user, nil
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    "UNAUTHORIZED",
	})
}

// TenantContext validates the bearer token, loads the user and resolves the
// company every downstream handler filters by. Super admins may pick a
// company with X-Company-Id; everyone else is pinned to their own.
func TenantContext(secret string, users UserLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Authorization header required")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return unauthorized(c, "Invalid authorization header format")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			logrus.WithField("component", "TenantContext").WithError(err).Debug("Rejected token")
			return unauthorized(c, "Invalid or expired token")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}

		user, err := users.LoadUser(c.UserContext(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "TenantContext",
				"user_id":   userID,
			}).WithError(err).Error("Failed to load user")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "Failed to authenticate user",
				"code":    "INTERNAL_ERROR",
			})
		}
		if user == nil {
			return unauthorized(c, "Invalid or expired token")
		}

		companyID := user.CompanyID
		if user.IsSuperAdmin {
			if header := strings.TrimSpace(c.Get("X-Company-Id")); header != "" {
				parsed, err := uuid.Parse(header)
				if err != nil {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"success": false,
						"error":   "Invalid X-Company-Id header",
						"code":    "INVALID_ID",
					})
				}
				companyID = &parsed
			} else if companyID == nil && claims.CompanyID != nil {
				if parsed, err := uuid.Parse(*claims.CompanyID); err == nil {
					companyID = &parsed
				}
			}
		}

		c.Locals(currentUserKey, user)
		c.Locals(companyIDKey, companyID)
		return c.Next()
	}
}

// RequireReportAccess lets only super admins, admins and HR admins through
func RequireReportAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil || !user.CanViewReports() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Not authorized to view reports",
				"code":    "FORBIDDEN",
			})
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside TenantContext
func CurrentUser(c *fiber.Ctx) *models.CurrentUser {
	user, _ := c.Locals(currentUserKey).(*models.CurrentUser)
	return user
}

// CompanyID returns the resolved tenant. Nil means a platform wide super admin view.
func CompanyID(c *fiber.Ctx) *uuid.UUID {
	id, _ := c.Locals(companyIDKey).(*uuid.UUID)
	return id
}
