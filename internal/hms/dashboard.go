package hms

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hms/hms-console/pkg/models"
	"github.com/hms/hms-console/pkg/pagination"
)

// Dashboard is the fan-in result of loading every list at once. A list
// that failed is empty and its error is kept in Errors under the resource
// name.
type Dashboard struct {
	Patients     []models.Patient
	Doctors      []models.Doctor
	Appointments []models.Appointment
	Diagnostics  []models.Diagnostic
	Medications  []models.Medication
	Errors       map[string]error
}

// Counts returns the number of loaded items per resource.
func (d *Dashboard) Counts() map[string]int {
	return map[string]int{
		ResourcePatients:     len(d.Patients),
		ResourceDoctors:      len(d.Doctors),
		ResourceAppointments: len(d.Appointments),
		ResourceDiagnostics:  len(d.Diagnostics),
		ResourceMedications:  len(d.Medications),
	}
}

// Dashboard fetches all five lists concurrently and waits for every one of
// them. A failing list is logged and left empty; it never prevents the others
// from loading. Only a missing session fails the whole call.
func (a *API) Dashboard(ctx context.Context) (*Dashboard, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}

	p := pagination.Params{Limit: pagination.MaxLimit}
	d := &Dashboard{}
	errs := make([]error, len(Resources))

	var g errgroup.Group
	g.Go(func() error {
		d.Patients, errs[0] = a.Patients(ctx, p)
		return nil
	})
	g.Go(func() error {
		d.Doctors, errs[1] = a.Doctors(ctx, p)
		return nil
	})
	g.Go(func() error {
		d.Appointments, errs[2] = a.Appointments(ctx, p)
		return nil
	})
	g.Go(func() error {
		d.Diagnostics, errs[3] = a.Diagnostics(ctx, p)
		return nil
	})
	g.Go(func() error {
		d.Medications, errs[4] = a.Medications(ctx, p)
		return nil
	})
	_ = g.Wait()

	d.Errors = make(map[string]error)
	for i, err := range errs {
		if err == nil {
			continue
		}
		resource := Resources[i]
		d.Errors[resource] = err
		a.logger.Warn().Err(err).Str("resource", resource).Msg("dashboard list unavailable")
	}

	if d.Patients == nil {
		d.Patients = []models.Patient{}
	}
	if d.Doctors == nil {
		d.Doctors = []models.Doctor{}
	}
	if d.Appointments == nil {
		d.Appointments = []models.Appointment{}
	}
	if d.Diagnostics == nil {
		d.Diagnostics = []models.Diagnostic{}
	}
	if d.Medications == nil {
		d.Medications = []models.Medication{}
	}
	return d, nil
}
