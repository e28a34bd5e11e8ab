package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-seat-booking/internal/middleware"
	"github.com/iliyamo/workshop-seat-booking/internal/utils"
)

// StaffAccount is the single staff login, configured from the environment.
type StaffAccount struct {
	Email        string
	PasswordHash string // bcrypt
}

// AuthHandler issues staff access tokens.
type AuthHandler struct {
	Staff        StaffAccount
	JWTSecret    string
	AccessTTLMin int
	Log          logrus.FieldLogger
}

func NewAuthHandler(staff StaffAccount, jwtSecret string, accessTTLMin int, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{Staff: staff, JWTSecret: jwtSecret, AccessTTLMin: accessTTLMin, Log: log}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "reason": reasonInvalidBody})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required", "reason": reasonInvalidBody})
	}
	// Always run bcrypt so a wrong email costs as much as a wrong password.
	okPass := utils.VerifyPassword(h.Staff.PasswordHash, req.Password)
	if email != strings.ToLower(h.Staff.Email) || !okPass {
		h.Log.WithField("email", email).Warn("staff login failed")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials", "reason": "UNAUTHORIZED"})
	}
	at, err := utils.NewAccessToken(h.JWTSecret, email, middleware.RoleStaff, h.AccessTTLMin)
	if err != nil {
		h.Log.WithError(err).Error("sign access token")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error", "reason": reasonInternal})
	}
	return c.JSON(http.StatusOK, echo.Map{"access": tokenPart{Token: at.Token, Expires: at.Exp}})
}
