// Package models holds the JSON shapes the hospital backend returns for its
// list endpoints. Field names follow the backend's wire format.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Appointment status values.
const (
	AppointmentPending   = "pendiente"
	AppointmentConfirmed = "confirmada"
	AppointmentCancelled = "cancelada"
	AppointmentCompleted = "completada"
)

// ID accepts both numeric and string identifiers on the wire and is always
// re-encoded as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Int returns the numeric value of the id, or 0 when it is not numeric.
func (id ID) Int() int {
	n, _ := strconv.Atoi(string(id))
	return n
}

type Patient struct {
	ID              ID     `json:"id"`
	Nombre          string `json:"nombre"`
	Apellido        string `json:"apellido"`
	Documento       string `json:"documento"`
	FechaNacimiento string `json:"fechaNacimiento,omitempty"`
	Telefono        string `json:"telefono,omitempty"`
	Email           string `json:"email,omitempty"`
}

// FullName joins first and last name.
func (p Patient) FullName() string {
	if p.Apellido == "" {
		return p.Nombre
	}
	return p.Nombre + " " + p.Apellido
}

type Doctor struct {
	ID           ID     `json:"id"`
	Nombre       string `json:"nombre"`
	Apellido     string `json:"apellido"`
	Especialidad string `json:"especialidad"`
	Email        string `json:"email,omitempty"`
}

func (d Doctor) FullName() string {
	if d.Apellido == "" {
		return d.Nombre
	}
	return d.Nombre + " " + d.Apellido
}

type Appointment struct {
	ID         ID     `json:"id"`
	PacienteID ID     `json:"pacienteId"`
	MedicoID   ID     `json:"medicoId"`
	Fecha      string `json:"fecha"`
	Hora       string `json:"hora"`
	Estado     string `json:"estado"`
	Motivo     string `json:"motivo,omitempty"`
}

type Diagnostic struct {
	ID          ID     `json:"id"`
	PacienteID  ID     `json:"pacienteId"`
	MedicoID    ID     `json:"medicoId"`
	Descripcion string `json:"descripcion"`
	Fecha       string `json:"fecha"`
}

type Medication struct {
	ID           ID     `json:"id"`
	Nombre       string `json:"nombre"`
	Presentacion string `json:"presentacion"`
	Stock        int    `json:"stock"`
}

// User is the principal returned by the login endpoint.
type User struct {
	ID       ID     `json:"id"`
	Nombre   string `json:"nombre"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
