package sandbox

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func findUser(email string) (DemoUser, bool) {
	for _, u := range DemoUsers {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return DemoUser{}, false
}

// issueToken signs a bearer token for u.
func (s *Server) issueToken(u DemoUser) (string, error) {
	now := s.cfg.Clock.Now()
	claims := tokenClaims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

func (s *Server) verifyToken(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.cfg.Clock.Now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// requireToken rejects requests without a valid bearer token and exposes
// the caller's role as "role".
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "token requerido")
		}
		claims, err := s.verifyToken(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "token inválido o expirado")
		}
		c.Set("role", claims.Role)
		c.Set("subject", claims.Subject)
		return next(c)
	}
}

// handleLogin answers in the Spanish envelope with token, usuario and rol at
// the top level. An empty email gets a bare plain-text 400.
func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		s.metrics.Login("bad_request")
		return c.String(http.StatusBadRequest, "Bad Request")
	}

	u, ok := findUser(strings.TrimSpace(req.Email))
	if !ok || req.Password != s.cfg.Password {
		s.metrics.Login("invalid_credentials")
		return c.JSON(http.StatusUnauthorized, failure("Credenciales inválidas"))
	}

	token, err := s.issueToken(u)
	if err != nil {
		return err
	}
	s.metrics.Login("success")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"estado":  true,
		"token":   token,
		"usuario": u,
		"rol":     u.Role,
	})
}

func roleIn(c echo.Context, roles ...string) bool {
	role, _ := c.Get("role").(string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
