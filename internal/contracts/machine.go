package contracts

import "github.com/mkoziy/contratos/crmsync/internal/models"

var transitions = map[models.ContractStatus][]models.ContractStatus{
	models.ContractDraft:     {models.ContractInReview, models.ContractValidated},
	models.ContractInReview:  {models.ContractValidated, models.ContractDraft},
	models.ContractValidated: {models.ContractSent},
	models.ContractSent:      {},
}

// CanTransition reports whether from → to is in the workflow.
func CanTransition(from, to models.ContractStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next lists the states reachable from s.
func Next(s models.ContractStatus) []models.ContractStatus {
	return append([]models.ContractStatus(nil), transitions[s]...)
}

// Role is the caller's role in the back office.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleEjecutivo Role = "ejecutivo"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// CanActOn reports whether a may transition c: admins always, ejecutivos
// only on contracts they own.
func (a Actor) CanActOn(c *models.Contract) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleEjecutivo:
		return a.ID != "" && a.ID == c.OwnerID
	}
	return false
}

// CanDraft reports whether a may create contracts.
func (a Actor) CanDraft() bool {
	return a.ID != "" && (a.Role == RoleAdmin || a.Role == RoleEjecutivo)
}
