package users

// UserRepo manages user storage. The session manager only reads from it.
type UserRepo interface {
	GetByID(id string) (*User, error)
	GetByEmail(email string) (*User, error)
	Upsert(user *User) error
	Delete(id string) error
}
