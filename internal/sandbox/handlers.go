package sandbox

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms-console/pkg/models"
	"github.com/hms/hms-console/pkg/pagination"
)

// ---------------------------------------------------------------------------
// List handlers
// ---------------------------------------------------------------------------

// estadoList is the Spanish flavoured list envelope. Patients, appointments
// and medications answer with pagination.Response instead, mirroring the
// mixed conventions of the real backend.
type estadoList struct {
	Estado bool        `json:"estado"`
	Data   interface{} `json:"data"`
	Total  int         `json:"total"`
}

func page[T any](items []T, p pagination.Params) []T {
	start, end := p.Window(len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

func (s *Server) handleListPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	s.mu.RLock()
	items, total := page(s.data.Patients, p), len(s.data.Patients)
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (s *Server) handleListDoctors(c echo.Context) error {
	p := pagination.FromContext(c)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, estadoList{Estado: true, Data: page(s.data.Doctors, p), Total: len(s.data.Doctors)})
}

func (s *Server) handleListAppointments(c echo.Context) error {
	p := pagination.FromContext(c)
	s.mu.RLock()
	items, total := page(s.data.Appointments, p), len(s.data.Appointments)
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (s *Server) handleListDiagnostics(c echo.Context) error {
	p := pagination.FromContext(c)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, estadoList{Estado: true, Data: page(s.data.Diagnostics, p), Total: len(s.data.Diagnostics)})
}

func (s *Server) handleListMedications(c echo.Context) error {
	p := pagination.FromContext(c)
	s.mu.RLock()
	items, total := page(s.data.Medications, p), len(s.data.Medications)
	s.mu.RUnlock()
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

// ---------------------------------------------------------------------------
// Patients
// ---------------------------------------------------------------------------

// handleCreatePatient registers a patient. Document numbers are unique.
func (s *Server) handleCreatePatient(c echo.Context) error {
	if !roleIn(c, "superuser", "admin", "secretaria") {
		return c.JSON(http.StatusForbidden, estadoFailure("permiso denegado", ""))
	}

	var in models.Patient
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, estadoFailure("solicitud incorrecta", ""))
	}
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.Documento = strings.TrimSpace(in.Documento)
	if in.Nombre == "" || in.Documento == "" {
		return c.JSON(http.StatusBadRequest, estadoFailure("nombre y documento son obligatorios", ""))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.data.Patients {
		if p.Documento == in.Documento {
			return c.JSON(http.StatusConflict,
				estadoFailure("ya existe un paciente con ese documento", "duplicado_paciente"))
		}
	}
	in.ID = models.ID(strconv.Itoa(s.nextPatientIDLocked()))
	s.data.Patients = append(s.data.Patients, in)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"estado":  true,
		"mensaje": "paciente creado",
		"data":    in,
	})
}

func (s *Server) nextPatientIDLocked() int {
	highest := 0
	for _, p := range s.data.Patients {
		if n := p.ID.Int(); n > highest {
			highest = n
		}
	}
	return highest + 1
}

func (s *Server) patientExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.data.Patients {
		if string(p.ID) == id {
			return true
		}
	}
	return false
}

// handleGetPhoto returns the uploaded photo, or a generated placeholder
// when none was uploaded.
func (s *Server) handleGetPhoto(c echo.Context) error {
	id := c.Param("id")
	if !s.patientExists(id) {
		return c.JSON(http.StatusNotFound, failure("paciente no encontrado"))
	}

	s.mu.RLock()
	ph, ok := s.photos[id]
	s.mu.RUnlock()
	if ok {
		return c.Blob(http.StatusOK, ph.contentType, ph.data)
	}

	data, err := placeholderPNG(id)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", data)
}

// handleUploadPhoto stores the multipart file field "foto".
func (s *Server) handleUploadPhoto(c echo.Context) error {
	id := c.Param("id")
	if !s.patientExists(id) {
		return c.JSON(http.StatusNotFound, failure("paciente no encontrado"))
	}

	fh, err := c.FormFile("foto")
	if err != nil {
		return c.JSON(http.StatusBadRequest, failure("falta el archivo foto"))
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	ct := fh.Header.Get(echo.HeaderContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return c.JSON(http.StatusUnsupportedMediaType, failure("la foto debe ser una imagen"))
	}

	s.mu.Lock()
	s.photos[id] = photo{contentType: ct, data: data}
	s.mu.Unlock()

	s.logger.Debug().Str("patient", id).Int("bytes", len(data)).Msg("photo stored")
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "foto actualizada"})
}

// placeholderPNG draws a small square whose colour depends on the id.
func placeholderPNG(id string) ([]byte, error) {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h = (h ^ uint32(id[i])) * 16777619
	}
	fill := color.RGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

// handleReset regenerates the dataset and drops uploaded photos.
func (s *Server) handleReset(c echo.Context) error {
	if !roleIn(c, "superuser", "admin") {
		return c.JSON(http.StatusForbidden, failure("permiso denegado"))
	}
	s.Reset()
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "datos regenerados"})
}

// Reset regenerates the dataset from the configured seed.
func (s *Server) Reset() {
	ds := Generate(s.cfg.Seed)
	s.mu.Lock()
	s.data = ds
	s.photos = make(map[string]photo)
	s.mu.Unlock()
}
