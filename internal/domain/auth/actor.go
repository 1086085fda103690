package auth

import "slices"

// UserContext is what the auth middleware stores on the request context.
type UserContext struct {
	UserID      string
	DisplayName string
	Email       string
	RoleName    string
}

// Actor is the signed-in identity handed explicitly to every staff operation.
type Actor struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (u UserContext) Actor() Actor {
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	return Actor{
		ID:          u.UserID,
		DisplayName: name,
		Role:        u.RoleName,
		Permissions: slices.Clone(RolePermissions[u.RoleName]),
	}
}

func (a Actor) Can(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

// SystemActor attributes background work such as seeding and scheduled jobs.
func SystemActor() Actor {
	return Actor{
		ID:          "system",
		DisplayName: "System",
		Role:        RoleSuperAdmin,
		Permissions: slices.Clone(RolePermissions[RoleSuperAdmin]),
	}
}
