package collaboration

import (
	"strings"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// Wizard step indices. Steps are 1-based to match the UI stepper.
const (
	StepInitialContact = 1
	StepScopeDetails   = 2
	StepAreaOfWork     = 3
	StepTakeoff        = 4
	StepDuration       = 5
	StepExpenses       = 6
	StepPricing        = 7
	StepFinalPricing   = 8
	StepSummary        = 9
)

var allSteps = []int{
	StepInitialContact, StepScopeDetails, StepAreaOfWork, StepTakeoff,
	StepDuration, StepExpenses, StepPricing, StepFinalPricing, StepSummary,
}

// PermissionGate derives and evaluates per-role access. It is stateless:
// every answer is a pure function of role and input.
type PermissionGate struct{}

// NewPermissionGate creates a gate
func NewPermissionGate() *PermissionGate {
	return &PermissionGate{}
}

// PermissionsForRole returns the default permission set for a role.
// Re-derive on role change; the result is immutable for the session.
func (g *PermissionGate) PermissionsForRole(role models.Role) models.CollaborationPermissions {
	switch role {
	case models.RoleOwner:
		return models.CollaborationPermissions{
			CanEdit:      true,
			CanComment:   true,
			CanShare:     true,
			CanDelete:    true,
			AllowedSteps: append([]int(nil), allSteps...),
		}
	case models.RoleEditor:
		return models.CollaborationPermissions{
			CanEdit:          true,
			CanComment:       true,
			AllowedSteps:     append([]int(nil), allSteps...),
			RestrictedFields: []string{"final_pricing"},
		}
	default: // viewer and unknown roles get the most restrictive set
		return models.CollaborationPermissions{
			CanComment:       true,
			AllowedSteps:     append([]int(nil), allSteps...),
			RestrictedFields: []string{"pricing", "expenses", "final_pricing"},
		}
	}
}

// CanEdit reports whether a role may write the given field path
func (g *PermissionGate) CanEdit(role models.Role, fieldPath string) bool {
	perms := g.PermissionsForRole(role)
	if !perms.CanEdit {
		return false
	}
	return !fieldRestricted(perms, fieldPath)
}

// CanNavigateToStep reports whether a role may open the given wizard step
func (g *PermissionGate) CanNavigateToStep(role models.Role, step int) bool {
	perms := g.PermissionsForRole(role)
	for _, s := range perms.AllowedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// FieldStatusFor derives how a field appears to an observer. A field being
// actively edited by a different active user shows as "editing" when the
// observer could otherwise edit it, "locked" when they could not; an idle
// field is "available" to editors and "locked" to everyone else.
func (g *PermissionGate) FieldStatusFor(observer models.CollaboratorPresence, fieldPath string, participants []models.CollaboratorPresence) models.FieldStatus {
	editable := g.CanEdit(observer.Role, fieldPath)

	for _, p := range participants {
		if p.UserID == observer.UserID || !p.IsActive || p.Cursor == nil {
			continue
		}
		if p.Cursor.FieldID == fieldPath {
			if editable {
				return models.FieldStatusEditing
			}
			return models.FieldStatusLocked
		}
	}

	if editable {
		return models.FieldStatusAvailable
	}
	return models.FieldStatusLocked
}

// fieldRestricted prefix-matches a field path against the restricted list,
// so "pricing" restricts "pricing.total_price" as well.
func fieldRestricted(perms models.CollaborationPermissions, fieldPath string) bool {
	for _, restricted := range perms.RestrictedFields {
		if fieldPath == restricted || strings.HasPrefix(fieldPath, restricted+".") {
			return true
		}
	}
	return false
}
