package types

const (
	SiteIDNone = "none"
)

// Site represents a household with a charger.
type Site struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Permissions []SitePermissions `json:"permissions"`
}

// SitePermissions represents the permissions for a user on a site.
type SitePermissions struct {
	UserID string `json:"userID"`
}

// UserSite represents a site on a user
type UserSite struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User represents an authenticated user of the system.
type User struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Sites []UserSite `json:"sites"`
	Admin bool       `json:"-"`
}
