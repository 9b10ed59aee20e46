package models

// Role is the closed set of actor roles in the custody chain.
// Unknown role strings never gain permissions; see custody.Permitted.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleHospital     Role = "hospital"
	RolePatient      Role = "patient"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManufacturer, RoleDistributor, RoleHospital, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated-actor context attached to every call.
// It is produced by the authentication collaborator, not by this core.
type Actor struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// IsAdmin reports whether the actor carries the admin override role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Organization represents a registered manufacturer or distributor entity.
// OrganizationID is globally unique, enforced by a storage constraint.
type Organization struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Role           Role   `json:"role"`
}

// Patient represents an end-recipient identity derived from an external login.
// PatientID is globally unique, enforced by a storage constraint.
type Patient struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
}
