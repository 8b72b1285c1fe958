package auth

type Role string

const (
	RoleOperator Role = "operator"
	RoleJudge    Role = "judge"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleJudge, RoleSystem:
		return true
	default:
		return false
	}
}

// Actor is who an operation is attributed to in the ledger.
type Actor struct {
	ID   string
	Role Role
}
