// Package hms is the typed boundary between console commands and the hospital
// backend. It owns the login flow, the role gates used to pick landing views
// and allowed actions, and read access to the five list endpoints.
package hms

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hms/hms-console/internal/platform/apiclient"
	"github.com/hms/hms-console/internal/platform/envelope"
	"github.com/hms/hms-console/internal/session"
	"github.com/hms/hms-console/pkg/models"
	"github.com/hms/hms-console/pkg/pagination"
)

// Resource path segments on the backend.
const (
	ResourcePatients     = "pacientes"
	ResourceDoctors      = "medicos"
	ResourceAppointments = "citas"
	ResourceDiagnostics  = "diagnosticos"
	ResourceMedications  = "medicamentos"
)

// Resources lists every dashboard resource in display order.
var Resources = []string{
	ResourcePatients,
	ResourceDoctors,
	ResourceAppointments,
	ResourceDiagnostics,
	ResourceMedications,
}

var (
	// ErrNotLoggedIn is returned by calls that need a session when there is
	// none. Callers should send the user to the login flow.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrUnexpectedBinary is returned when a JSON endpoint answered with a
	// non-JSON body.
	ErrUnexpectedBinary = errors.New("expected JSON response")

	// ErrUnexpectedJSON is returned when a binary endpoint answered with JSON.
	ErrUnexpectedJSON = errors.New("expected binary response")
)

// API bundles the fetch client and the session store.
type API struct {
	client  *apiclient.Client
	session *session.Store
	logger  zerolog.Logger
}

// New creates an API facade.
func New(client *apiclient.Client, store *session.Store, logger zerolog.Logger) *API {
	return &API{
		client:  client,
		session: store,
		logger:  logger.With().Str("component", "hms").Logger(),
	}
}

// Session returns the current session snapshot.
func (a *API) Session() session.Session {
	return a.session.Current()
}

func (a *API) requireAuth() error {
	if !a.session.Current().Authenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

// Patients lists one page of patients.
func (a *API) Patients(ctx context.Context, p pagination.Params) ([]models.Patient, error) {
	return list[models.Patient](ctx, a, ResourcePatients, p)
}

// Doctors lists one page of doctors.
func (a *API) Doctors(ctx context.Context, p pagination.Params) ([]models.Doctor, error) {
	return list[models.Doctor](ctx, a, ResourceDoctors, p)
}

// Appointments lists one page of appointments.
func (a *API) Appointments(ctx context.Context, p pagination.Params) ([]models.Appointment, error) {
	return list[models.Appointment](ctx, a, ResourceAppointments, p)
}

// Diagnostics lists one page of diagnostics.
func (a *API) Diagnostics(ctx context.Context, p pagination.Params) ([]models.Diagnostic, error) {
	return list[models.Diagnostic](ctx, a, ResourceDiagnostics, p)
}

// Medications lists one page of medications.
func (a *API) Medications(ctx context.Context, p pagination.Params) ([]models.Medication, error) {
	return list[models.Medication](ctx, a, ResourceMedications, p)
}

func list[T any](ctx context.Context, a *API, resource string, p pagination.Params) ([]T, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}

	resp, err := a.client.Request(ctx, p.Apply("/"+resource), apiclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", resource, err)
	}
	if resp.Kind != apiclient.KindJSON {
		return nil, fmt.Errorf("list %s: %w (got %s)", resource, ErrUnexpectedBinary, resp.ContentType)
	}

	items, _, err := envelope.DecodeList[T](resp.JSON)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", resource, err)
	}
	return items, nil
}
