/*
Package user holds the identity bound to an authenticated connection.
*/
package user

// Identity is the verified {userId, username, email} produced from a credential.
// It never changes for the life of a connection.
type Identity struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Valid reports whether the identity carries the fields the core relies on.
func (i Identity) Valid() bool {
	return i.ID != "" && i.Username != ""
}
