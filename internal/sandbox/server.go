package sandbox

import (
	"crypto/rand"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hms/hms-console/internal/platform/middleware"
	"github.com/hms/hms-console/internal/platform/telemetry"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// DefaultPassword is the password of every demo account unless overridden.
const DefaultPassword = "demo1234"

// Config controls a sandbox server.
type Config struct {
	// SigningKey signs HS256 bearer tokens. A random key is generated when
	// empty, which invalidates tokens across restarts.
	SigningKey []byte
	TokenTTL   time.Duration
	Password   string
	Seed       SeedConfig
	// Clock drives token issuance and validation.
	Clock clockwork.Clock
}

// DemoUser is a built-in account.
type DemoUser struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Role   string `json:"-"`
}

// DemoUsers lists the accounts accepted by the sandbox login, one per role.
var DemoUsers = []DemoUser{
	{ID: 1, Nombre: "Root", Email: "root@hospital.test", Role: "superuser"},
	{ID: 2, Nombre: "Administración", Email: "admin@hospital.test", Role: "admin"},
	{ID: 3, Nombre: "Recepción", Email: "secretaria@hospital.test", Role: "secretaria"},
	{ID: 4, Nombre: "Dra. Torres", Email: "medico@hospital.test", Role: "medico"},
	{ID: 5, Nombre: "Paciente Demo", Email: "paciente@hospital.test", Role: "paciente"},
	{ID: 6, Nombre: "Farmacia", Email: "dispensario@hospital.test", Role: "dispensario"},
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

type photo struct {
	contentType string
	data        []byte
}

// Server is an in-memory hospital backend.
type Server struct {
	cfg      Config
	logger   zerolog.Logger
	echo     *echo.Echo
	registry *prometheus.Registry
	metrics  *telemetry.HTTPMetrics

	mu     sync.RWMutex
	data   *Dataset
	photos map[string]photo
}

// New builds a sandbox server with freshly generated data.
func New(cfg Config, logger zerolog.Logger) (*Server, error) {
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = make([]byte, 32)
		if _, err := rand.Read(cfg.SigningKey); err != nil {
			return nil, err
		}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.Seed == (SeedConfig{}) {
		cfg.Seed = DefaultSeedConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	reg := telemetry.NewRegistry()
	s := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "sandbox").Logger(),
		registry: reg,
		metrics:  telemetry.NewHTTPMetrics(reg),
		data:     Generate(cfg.Seed),
		photos:   make(map[string]photo),
	}
	s.echo = s.routes()
	return s, nil
}

// Handler returns the server's echo instance.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(s.logger))
	e.Use(s.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", "5M"))

	e.GET("/metrics", echo.WrapHandler(telemetry.Handler(s.registry)))

	api := e.Group("/api")
	api.POST("/login", s.handleLogin, middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Token checks are per route so unknown paths still fall through to 404.
	auth := s.requireToken
	api.GET("/pacientes", s.handleListPatients, auth)
	api.POST("/pacientes", s.handleCreatePatient, auth)
	api.GET("/pacientes/:id/foto", s.handleGetPhoto, auth)
	api.POST("/pacientes/:id/foto", s.handleUploadPhoto, auth)
	api.GET("/medicos", s.handleListDoctors, auth)
	api.GET("/citas", s.handleListAppointments, auth)
	api.GET("/diagnosticos", s.handleListDiagnostics, auth)
	api.GET("/medicamentos", s.handleListMedications, auth)
	api.POST("/sandbox/reset", s.handleReset, auth)

	return e
}

const notFoundPage = `<!DOCTYPE html>
<html><head><title>404</title></head>
<body><h1>404 Not Found</h1></body></html>
`

// handleError renders unknown routes as an HTML page and every other error
// as a failure envelope.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "error interno del servidor"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}

	var werr error
	switch {
	case code == http.StatusNotFound:
		werr = c.HTML(code, notFoundPage)
	case c.Request().Method == http.MethodHead:
		werr = c.NoContent(code)
	default:
		werr = c.JSON(code, failure(msg))
	}
	if werr != nil {
		s.logger.Error().Err(werr).Msg("write error response")
	}
}

// failure is the "success" flavoured failure envelope.
func failure(msg string) map[string]interface{} {
	return map[string]interface{}{"success": false, "message": msg}
}

// estadoFailure is the Spanish flavoured failure envelope.
func estadoFailure(msg, kind string) map[string]interface{} {
	body := map[string]interface{}{"estado": false, "mensaje": msg}
	if kind != "" {
		body["tipoError"] = kind
	}
	return body
}
