package lifecycle

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// ActingUser is the caller on whose behalf an operation runs. It is always
// passed explicitly; the lifecycle never reads session state.
type ActingUser struct {
	ID   int64
	Role Role
}

// SystemActor is used by payment confirmations and background jobs.
var SystemActor = ActingUser{Role: RoleSystem}

func AsCustomer(id int64) ActingUser { return ActingUser{ID: id, Role: RoleCustomer} }

func AsAdmin(id int64) ActingUser { return ActingUser{ID: id, Role: RoleAdmin} }

func (a ActingUser) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Owns reports whether a is the customer customerID.
func (a ActingUser) Owns(customerID int64) bool {
	return a.Role == RoleCustomer && a.ID == customerID
}
