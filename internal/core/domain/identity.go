package domain

import (
	"strings"

	uuid "github.com/google/uuid"
)

// ProviderName tags which identity provider owns authentication for a user.
type ProviderName string

const (
	ProviderLocalCredential ProviderName = "LocalCredential"
	ProviderDirectory       ProviderName = "Directory"
)

// UserAccountID is the stable join key between a provider's native user
// record and the domain UserAccount. It never changes once assigned, even
// across a provider switch.
type UserAccountID struct{ id uuid.UUID }

// NewUserAccountID allocates a fresh user account identifier.
func NewUserAccountID() UserAccountID { return UserAccountID{id: uuid.New()} }

// ParseUserAccountID parses the string form of a user account identifier.
func ParseUserAccountID(raw string) (UserAccountID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return UserAccountID{}, Validationf("invalid user account id %q", raw)
	}
	return UserAccountID{id: id}, nil
}

func (u UserAccountID) String() string { return u.id.String() }
func (u UserAccountID) IsZero() bool   { return u.id == uuid.Nil }

// Email is a normalized email address. The domain part is lowered so that
// equality is case-insensitive where mail routing is.
type Email struct{ value string }

// NewEmail validates and normalizes an email address.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return Email{}, Validationf("invalid email address %q", raw)
	}
	local, domainPart := trimmed[:at], trimmed[at+1:]
	if strings.ContainsAny(local, " \t") || !strings.Contains(domainPart, ".") {
		return Email{}, Validationf("invalid email address %q", raw)
	}
	return Email{value: local + "@" + strings.ToLower(domainPart)}, nil
}

func (e Email) String() string      { return e.value }
func (e Email) IsZero() bool        { return e.value == "" }
func (e Email) Equals(o Email) bool { return e.value == o.value }

// UserAccount is the aggregate root for a domain user. Role membership is
// held as a set of role IDs and mutated only through AssignRole/RevokeRole,
// which validate preconditions and record domain events.
type UserAccount struct {
	ID       UserAccountID
	Username string
	Email    Email
	Provider ProviderName

	roleIDs map[RoleID]struct{}
	events  []Event
}

// NewUserAccount creates a user account aggregate owned by the given provider.
func NewUserAccount(username string, email Email, provider ProviderName) (*UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, Validationf("username is required")
	}
	if email.IsZero() {
		return nil, Validationf("email is required")
	}
	return &UserAccount{
		ID:       NewUserAccountID(),
		Username: username,
		Email:    email,
		Provider: provider,
		roleIDs:  make(map[RoleID]struct{}),
	}, nil
}

// RehydrateUserAccount rebuilds an aggregate from persisted state without
// emitting events.
func RehydrateUserAccount(id UserAccountID, username string, email Email, provider ProviderName, roleIDs []RoleID) *UserAccount {
	set := make(map[RoleID]struct{}, len(roleIDs))
	for _, rid := range roleIDs {
		set[rid] = struct{}{}
	}
	return &UserAccount{ID: id, Username: username, Email: email, Provider: provider, roleIDs: set}
}

// RoleIDs returns the assigned role identifiers.
func (u *UserAccount) RoleIDs() []RoleID {
	ids := make([]RoleID, 0, len(u.roleIDs))
	for rid := range u.roleIDs {
		ids = append(ids, rid)
	}
	return ids
}

// HasRole reports whether the role is assigned to the user.
func (u *UserAccount) HasRole(roleID RoleID) bool {
	_, ok := u.roleIDs[roleID]
	return ok
}

// AssignRole adds the role to the user. Assigning a role the user already
// holds is a no-op and emits no event.
func (u *UserAccount) AssignRole(roleID RoleID) {
	if _, ok := u.roleIDs[roleID]; ok {
		return
	}
	u.roleIDs[roleID] = struct{}{}
	u.record(UserRoleAdded{UserID: u.ID, RoleID: roleID})
}

// RevokeRole removes the role from the user. Revoking a role the user does
// not hold fails with a not-assigned error.
func (u *UserAccount) RevokeRole(roleID RoleID) error {
	if _, ok := u.roleIDs[roleID]; !ok {
		return NewError(KindNotAssigned, "role not assigned to user")
	}
	delete(u.roleIDs, roleID)
	u.record(UserRoleRemoved{UserID: u.ID, RoleID: roleID})
	return nil
}

// ChangeEmail updates the account email address.
func (u *UserAccount) ChangeEmail(email Email) error {
	if email.IsZero() {
		return Validationf("email is required")
	}
	u.Email = email
	return nil
}

// Events returns pending domain events in mutation order.
func (u *UserAccount) Events() []Event { return u.events }

// ClearEvents drops pending events after they have been dispatched.
func (u *UserAccount) ClearEvents() { u.events = nil }

func (u *UserAccount) record(e Event) { u.events = append(u.events, e) }
