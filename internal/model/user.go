package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
)

// User is the identity carried by a login token. It is never persisted.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
	ClassCode string   `json:"classCode,omitempty"`
}

func (r UserRole) Valid() bool {
	return r == Student || r == Teacher
}

// Identity names the person behind a login. Separate logins by the same
// student share it even though each gets a fresh ID.
func (u User) Identity() string {
	return string(u.Role) + "/" + u.ClassCode + "/" + u.Name
}
