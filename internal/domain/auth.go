package domain

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// AuthContext identifies the caller of an operation. It is resolved by the
// transport layer and passed explicitly into every service call.
type AuthContext struct {
	UserID string
	Role   Role
}

func (a AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the caller may read data owned by userID.
func (a AuthContext) CanAccess(userID string) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == userID)
}
