// Package custody owns the append-only step history and quality-check log
// for a batch. Steps are owned collectively: no actor may edit or remove a
// prior step, only append.
package custody

import "pharmatrace/internal/models"

// rolePermissions is the exhaustive action set per role. The map is keyed by
// the closed Role enum; an unknown role yields an empty set and therefore
// fails every authorization check.
var rolePermissions = map[models.Role]map[models.StepAction]bool{
	models.RoleManufacturer: {
		models.ActionCreated:      true,
		models.ActionQualityCheck: true,
	},
	models.RoleDistributor: {
		models.ActionShipped:      true,
		models.ActionReceived:     true,
		models.ActionStored:       true,
		models.ActionQualityCheck: true,
	},
	models.RoleHospital: {
		models.ActionReceived:     true,
		models.ActionStored:       true,
		models.ActionDispensed:    true,
		models.ActionQualityCheck: true,
	},
	models.RolePatient: {
		models.ActionReceived: true,
	},
	models.RoleAdmin: {
		models.ActionCreated:      true,
		models.ActionShipped:      true,
		models.ActionReceived:     true,
		models.ActionStored:       true,
		models.ActionDispensed:    true,
		models.ActionQualityCheck: true,
		models.ActionRecalled:     true,
	},
}

// roleStepTypes derives the step type recorded for each acting role.
// Callers never supply a step type.
var roleStepTypes = map[models.Role]models.StepType{
	models.RoleManufacturer: models.StepProduction,
	models.RoleAdmin:        models.StepProduction,
	models.RoleDistributor:  models.StepDistribution,
	models.RoleHospital:     models.StepHospital,
	models.RolePatient:      models.StepPatient,
}

// Permitted reports whether the role may record the action.
func Permitted(role models.Role, action models.StepAction) bool {
	return rolePermissions[role][action]
}

// StepTypeFor returns the step type derived from the acting role.
// The second return is false for unknown roles.
func StepTypeFor(role models.Role) (models.StepType, bool) {
	stepType, ok := roleStepTypes[role]
	return stepType, ok
}
