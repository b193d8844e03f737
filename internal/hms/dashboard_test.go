package hms

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDashboard_AgainstSandbox(t *testing.T) {
	a, _ := newSandboxAPI(t)
	mustLogin(t, a, "admin@hospital.test")

	d, err := a.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(d.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", d.Errors)
	}

	want := map[string]int{
		ResourcePatients:     40,
		ResourceDoctors:      8,
		ResourceAppointments: 60,
		ResourceDiagnostics:  30,
		ResourceMedications:  25,
	}
	for resource, n := range d.Counts() {
		if n != want[resource] {
			t.Errorf("%s: %d items, want %d", resource, n, want[resource])
		}
	}
}

func TestDashboard_PartialFailure(t *testing.T) {
	a := loggedInAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/citas"):
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"base de datos no disponible"}`))
		case strings.HasPrefix(r.URL.Path, "/medicamentos"):
			w.Write([]byte(`{"estado":false,"mensaje":"inventario bloqueado"}`))
		default:
			w.Write([]byte(`{"success":true,"data":[{"id":1},{"id":2}]}`))
		}
	}))

	d, err := a.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if len(d.Errors) != 2 {
		t.Fatalf("errors = %v, want citas and medicamentos", d.Errors)
	}
	if err := d.Errors[ResourceAppointments]; err == nil || !strings.Contains(err.Error(), "base de datos no disponible") {
		t.Errorf("citas error = %v", err)
	}
	if err := d.Errors[ResourceMedications]; err == nil || !strings.Contains(err.Error(), "inventario bloqueado") {
		t.Errorf("medicamentos error = %v", err)
	}

	if d.Appointments == nil || len(d.Appointments) != 0 {
		t.Errorf("failed list should be empty and non-nil, got %#v", d.Appointments)
	}
	if d.Medications == nil || len(d.Medications) != 0 {
		t.Errorf("failed list should be empty and non-nil, got %#v", d.Medications)
	}
	if len(d.Patients) != 2 || len(d.Doctors) != 2 || len(d.Diagnostics) != 2 {
		t.Errorf("healthy lists not loaded: %v", d.Counts())
	}
}

func TestDashboard_FetchesConcurrently(t *testing.T) {
	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)
	a := loggedInAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrived++
		if arrived == len(Resources) {
			close(release)
		}
		mu.Unlock()

		select {
		case <-release:
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	d, err := a.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(d.Errors) != 0 {
		t.Fatalf("requests were not in flight together: %v", d.Errors)
	}
}

func TestDashboard_CancelledContext(t *testing.T) {
	a, _ := newSandboxAPI(t)
	mustLogin(t, a, "admin@hospital.test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := a.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(d.Errors) != len(Resources) {
		t.Errorf("expected every list to fail, got %v", d.Errors)
	}
	for resource, n := range d.Counts() {
		if n != 0 {
			t.Errorf("%s: %d items after cancellation", resource, n)
		}
	}
}
