package domain

type UserStatus string

const (
	UserOnline  UserStatus = "Online"
	UserOffline UserStatus = "Offline"
)

type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Username string     `json:"username"`
	Status   UserStatus `json:"status"`
}

// UserResponse is the public projection of a user, safe to put on the wire.
type UserResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Username string     `json:"username"`
	Status   UserStatus `json:"status"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Status:   u.Status,
	}
}
