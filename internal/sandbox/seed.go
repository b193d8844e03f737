// Package sandbox is a self-contained stand-in for the hospital backend. It
// serves reproducible synthetic data using the same envelope conventions as
// the real service, including its inconsistent field naming, so the console
// can be developed and tested without a live deployment.
package sandbox

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/hms/hms-console/pkg/models"
)

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	PatientCount     int
	DoctorCount      int
	AppointmentCount int
	DiagnosticCount  int
	MedicationCount  int
	Seed             int64
}

// DefaultSeedConfig returns a small, fixed-seed dataset.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:     40,
		DoctorCount:      8,
		AppointmentCount: 60,
		DiagnosticCount:  30,
		MedicationCount:  25,
		Seed:             1,
	}
}

// Dataset is the generated content served by the sandbox.
type Dataset struct {
	Patients     []models.Patient
	Doctors      []models.Doctor
	Appointments []models.Appointment
	Diagnostics  []models.Diagnostic
	Medications  []models.Medication
}

var (
	firstNames = []string{
		"Ana", "Luis", "María", "Carlos", "Lucía", "Jorge", "Elena", "Pedro",
		"Sofía", "Miguel", "Valentina", "Andrés", "Camila", "Diego", "Paula",
	}
	lastNames = []string{
		"García", "Rodríguez", "Martínez", "López", "González", "Pérez",
		"Sánchez", "Ramírez", "Torres", "Flores", "Rivera", "Gómez",
	}
	specialties = []string{
		"Medicina General", "Pediatría", "Cardiología", "Dermatología",
		"Ginecología", "Traumatología", "Neurología",
	}
	reasons = []string{
		"Control", "Dolor de cabeza", "Fiebre", "Chequeo anual",
		"Seguimiento", "Dolor abdominal", "Vacunación",
	}
	findings = []string{
		"Hipertensión arterial", "Diabetes tipo 2", "Rinofaringitis aguda",
		"Gastritis", "Migraña", "Dermatitis atópica", "Lumbalgia",
	}
	drugs = []struct{ name, form string }{
		{"Paracetamol", "Tabletas 500 mg"},
		{"Ibuprofeno", "Tabletas 400 mg"},
		{"Amoxicilina", "Cápsulas 500 mg"},
		{"Losartán", "Tabletas 50 mg"},
		{"Metformina", "Tabletas 850 mg"},
		{"Omeprazol", "Cápsulas 20 mg"},
		{"Salbutamol", "Inhalador 100 mcg"},
		{"Loratadina", "Jarabe 5 mg/5 ml"},
	}
	statuses = []string{
		models.AppointmentPending,
		models.AppointmentConfirmed,
		models.AppointmentCancelled,
		models.AppointmentCompleted,
	}
)

// Generate builds a dataset. The same config always yields the same data.
func Generate(cfg SeedConfig) *Dataset {
	rng := rand.New(rand.NewSource(cfg.Seed))
	base := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	pick := func(list []string) string { return list[rng.Intn(len(list))] }

	ds := &Dataset{}

	for i := 1; i <= cfg.PatientCount; i++ {
		first, last := pick(firstNames), pick(lastNames)
		birth := base.AddDate(-18-rng.Intn(60), -rng.Intn(12), -rng.Intn(28))
		ds.Patients = append(ds.Patients, models.Patient{
			ID:              models.ID(fmt.Sprint(i)),
			Nombre:          first,
			Apellido:        last,
			Documento:       fmt.Sprintf("1%05d%04d", rng.Intn(100000), i),
			FechaNacimiento: birth.Format("2006-01-02"),
			Telefono:        fmt.Sprintf("3%02d%07d", rng.Intn(100), rng.Intn(10000000)),
		})
	}

	for i := 1; i <= cfg.DoctorCount; i++ {
		ds.Doctors = append(ds.Doctors, models.Doctor{
			ID:           models.ID(fmt.Sprint(i)),
			Nombre:       pick(firstNames),
			Apellido:     pick(lastNames),
			Especialidad: pick(specialties),
			Email:        fmt.Sprintf("medico%d@hospital.test", i),
		})
	}

	if cfg.PatientCount > 0 && cfg.DoctorCount > 0 {
		for i := 1; i <= cfg.AppointmentCount; i++ {
			day := base.AddDate(0, 0, rng.Intn(120))
			ds.Appointments = append(ds.Appointments, models.Appointment{
				ID:         models.ID(fmt.Sprint(i)),
				PacienteID: models.ID(fmt.Sprint(1 + rng.Intn(cfg.PatientCount))),
				MedicoID:   models.ID(fmt.Sprint(1 + rng.Intn(cfg.DoctorCount))),
				Fecha:      day.Format("2006-01-02"),
				Hora:       fmt.Sprintf("%02d:%02d", 7+rng.Intn(11), 15*rng.Intn(4)),
				Estado:     pick(statuses),
				Motivo:     pick(reasons),
			})
		}

		for i := 1; i <= cfg.DiagnosticCount; i++ {
			ds.Diagnostics = append(ds.Diagnostics, models.Diagnostic{
				ID:          models.ID(fmt.Sprint(i)),
				PacienteID:  models.ID(fmt.Sprint(1 + rng.Intn(cfg.PatientCount))),
				MedicoID:    models.ID(fmt.Sprint(1 + rng.Intn(cfg.DoctorCount))),
				Descripcion: pick(findings),
				Fecha:       base.AddDate(0, 0, rng.Intn(120)).Format("2006-01-02"),
			})
		}
	}

	for i := 1; i <= cfg.MedicationCount; i++ {
		d := drugs[rng.Intn(len(drugs))]
		ds.Medications = append(ds.Medications, models.Medication{
			ID:           models.ID(fmt.Sprint(i)),
			Nombre:       d.name,
			Presentacion: d.form,
			Stock:        rng.Intn(500),
		})
	}

	return ds
}
