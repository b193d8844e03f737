package hms

import "github.com/hms/hms-console/internal/session"

// LandingPath is the view a user lands on after login.
func LandingPath(role string) string {
	switch role {
	case session.RoleSuperuser, session.RoleAdmin:
		return "/dashboard"
	case session.RoleSecretaria:
		return "/citas"
	case session.RoleMedico:
		return "/diagnosticos"
	case session.RolePaciente:
		return "/mis-citas"
	case session.RoleDispensario:
		return "/medicamentos"
	default:
		return "/"
	}
}

// manageable maps each role to the resources it may create or modify.
// Reading is governed by the backend.
var manageable = map[string]map[string]bool{
	session.RoleSecretaria: {
		ResourcePatients:     true,
		ResourceAppointments: true,
	},
	session.RoleMedico: {
		ResourceAppointments: true,
		ResourceDiagnostics:  true,
	},
	session.RoleDispensario: {
		ResourceMedications: true,
	},
}

// CanManage reports whether role may create or modify resource.
// superuser and admin may manage everything; unknown roles nothing.
func CanManage(role, resource string) bool {
	if role == session.RoleSuperuser || role == session.RoleAdmin {
		return true
	}
	return manageable[role][resource]
}
