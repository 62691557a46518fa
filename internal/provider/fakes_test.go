package provider

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/core/domain"
	"github.com/avalon-platform/identity-service/internal/core/port"
	"github.com/avalon-platform/identity-service/internal/repository"
	"github.com/avalon-platform/identity-service/internal/usecase"
)

// memStore is a shared in-memory backing for the repository fakes so the
// user, role, and permission views stay consistent with each other.
type memStore struct {
	users     map[domain.UserAccountID]userRec
	roles     map[domain.RoleID]roleRec
	perms     map[domain.PermissionID]*domain.Permission
	userRoles map[domain.UserAccountID]map[domain.RoleID]struct{}
	rolePerms map[domain.RoleID]map[domain.PermissionID]struct{}
}

type userRec struct {
	username string
	email    domain.Email
	provider domain.ProviderName
}

type roleRec struct {
	name        string
	description string
	system      bool
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[domain.UserAccountID]userRec),
		roles:     make(map[domain.RoleID]roleRec),
		perms:     make(map[domain.PermissionID]*domain.Permission),
		userRoles: make(map[domain.UserAccountID]map[domain.RoleID]struct{}),
		rolePerms: make(map[domain.RoleID]map[domain.PermissionID]struct{}),
	}
}

// snapshot deep-copies the store so a failed transaction can restore it.
func (s *memStore) snapshot() *memStore {
	copied := newMemStore()
	for id, rec := range s.users {
		copied.users[id] = rec
	}
	for id, rec := range s.roles {
		copied.roles[id] = rec
	}
	for id, permission := range s.perms {
		copied.perms[id] = permission
	}
	for uid, set := range s.userRoles {
		inner := make(map[domain.RoleID]struct{}, len(set))
		for rid := range set {
			inner[rid] = struct{}{}
		}
		copied.userRoles[uid] = inner
	}
	for rid, set := range s.rolePerms {
		inner := make(map[domain.PermissionID]struct{}, len(set))
		for pid := range set {
			inner[pid] = struct{}{}
		}
		copied.rolePerms[rid] = inner
	}
	return copied
}

func (s *memStore) restore(from *memStore) {
	s.users = from.users
	s.roles = from.roles
	s.perms = from.perms
	s.userRoles = from.userRoles
	s.rolePerms = from.rolePerms
}

func (s *memStore) roleIDsFor(userID domain.UserAccountID) []domain.RoleID {
	ids := make([]domain.RoleID, 0, len(s.userRoles[userID]))
	for rid := range s.userRoles[userID] {
		ids = append(ids, rid)
	}
	return ids
}

func (s *memStore) hydrateUser(id domain.UserAccountID) *domain.UserAccount {
	rec := s.users[id]
	return domain.RehydrateUserAccount(id, rec.username, rec.email, rec.provider, s.roleIDsFor(id))
}

func (s *memStore) hydrateRole(id domain.RoleID) *domain.Role {
	rec := s.roles[id]
	permIDs := make([]domain.PermissionID, 0, len(s.rolePerms[id]))
	for pid := range s.rolePerms[id] {
		permIDs = append(permIDs, pid)
	}
	return domain.RehydrateRole(id, rec.name, rec.description, rec.system, permIDs)
}

type memUserRepo struct {
	store *memStore
	err   error
}

func (r *memUserRepo) Create(_ context.Context, user *domain.UserAccount) error {
	if r.err != nil {
		return r.err
	}
	for _, rec := range r.store.users {
		if rec.username == user.Username || rec.email.Equals(user.Email) {
			return repository.ErrDuplicate
		}
	}
	r.store.users[user.ID] = userRec{username: user.Username, email: user.Email, provider: user.Provider}
	r.store.userRoles[user.ID] = make(map[domain.RoleID]struct{})
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id domain.UserAccountID) (*domain.UserAccount, error) {
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := r.store.users[id]; !ok {
		return nil, repository.ErrNotFound
	}
	return r.store.hydrateUser(id), nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	if r.err != nil {
		return nil, r.err
	}
	for id, rec := range r.store.users {
		if rec.username == username {
			return r.store.hydrateUser(id), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email domain.Email) (*domain.UserAccount, error) {
	if r.err != nil {
		return nil, r.err
	}
	for id, rec := range r.store.users {
		if rec.email.Equals(email) {
			return r.store.hydrateUser(id), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) Update(_ context.Context, user *domain.UserAccount) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.store.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.store.users[user.ID] = userRec{username: user.Username, email: user.Email, provider: user.Provider}
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id domain.UserAccountID) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.store.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.store.users, id)
	delete(r.store.userRoles, id)
	return nil
}

func (r *memUserRepo) AssignRole(_ context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	set := r.store.userRoles[userID]
	if set == nil {
		set = make(map[domain.RoleID]struct{})
		r.store.userRoles[userID] = set
	}
	if _, ok := set[roleID]; ok {
		return false, nil
	}
	set[roleID] = struct{}{}
	return true, nil
}

func (r *memUserRepo) RevokeRole(_ context.Context, userID domain.UserAccountID, roleID domain.RoleID) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	set := r.store.userRoles[userID]
	if _, ok := set[roleID]; !ok {
		return false, nil
	}
	delete(set, roleID)
	return true, nil
}

func (r *memUserRepo) ListRoleIDs(_ context.Context, userID domain.UserAccountID) ([]domain.RoleID, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.store.roleIDsFor(userID), nil
}

type memCredentialRepo struct {
	hashes map[domain.UserAccountID]string
	err    error
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{hashes: make(map[domain.UserAccountID]string)}
}

func (r *memCredentialRepo) SetPasswordHash(_ context.Context, userID domain.UserAccountID, hash string) error {
	if r.err != nil {
		return r.err
	}
	r.hashes[userID] = hash
	return nil
}

func (r *memCredentialRepo) GetPasswordHash(_ context.Context, userID domain.UserAccountID) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	hash, ok := r.hashes[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return hash, nil
}

func (r *memCredentialRepo) DeletePasswordHash(_ context.Context, userID domain.UserAccountID) error {
	if r.err != nil {
		return r.err
	}
	delete(r.hashes, userID)
	return nil
}

type memRoleRepo struct {
	store     *memStore
	err       error
	attachErr error
}

func (r *memRoleRepo) Create(_ context.Context, role *domain.Role) error {
	if r.err != nil {
		return r.err
	}
	for _, rec := range r.store.roles {
		if domain.NormalizeRoleName(rec.name) == role.NormalizedName {
			return repository.ErrDuplicate
		}
	}
	r.store.roles[role.ID] = roleRec{name: role.Name, description: role.Description, system: role.IsSystemDefined}
	if r.store.rolePerms[role.ID] == nil {
		r.store.rolePerms[role.ID] = make(map[domain.PermissionID]struct{})
	}
	return nil
}

func (r *memRoleRepo) List(_ context.Context) ([]*domain.Role, error) {
	if r.err != nil {
		return nil, r.err
	}
	roles := make([]*domain.Role, 0, len(r.store.roles))
	for id := range r.store.roles {
		roles = append(roles, r.store.hydrateRole(id))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (r *memRoleRepo) GetByID(_ context.Context, id domain.RoleID) (*domain.Role, error) {
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := r.store.roles[id]; !ok {
		return nil, repository.ErrNotFound
	}
	return r.store.hydrateRole(id), nil
}

func (r *memRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	if r.err != nil {
		return nil, r.err
	}
	normalized := domain.NormalizeRoleName(name)
	for id, rec := range r.store.roles {
		if domain.NormalizeRoleName(rec.name) == normalized {
			return r.store.hydrateRole(id), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRoleRepo) Update(_ context.Context, role *domain.Role) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.store.roles[role.ID]; !ok {
		return repository.ErrNotFound
	}
	r.store.roles[role.ID] = roleRec{name: role.Name, description: role.Description, system: role.IsSystemDefined}
	return nil
}

func (r *memRoleRepo) Delete(_ context.Context, id domain.RoleID) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.store.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.store.roles, id)
	delete(r.store.rolePerms, id)
	return nil
}

func (r *memRoleRepo) AttachPermissions(_ context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.attachErr != nil {
		return 0, r.attachErr
	}
	set := r.store.rolePerms[roleID]
	if set == nil {
		set = make(map[domain.PermissionID]struct{})
		r.store.rolePerms[roleID] = set
	}
	inserted := 0
	for _, pid := range permissionIDs {
		if _, ok := set[pid]; ok {
			continue
		}
		set[pid] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (r *memRoleRepo) DetachPermissions(_ context.Context, roleID domain.RoleID, permissionIDs []domain.PermissionID) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	set := r.store.rolePerms[roleID]
	deleted := 0
	for _, pid := range permissionIDs {
		if _, ok := set[pid]; ok {
			delete(set, pid)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memRoleRepo) ListByUser(_ context.Context, userID domain.UserAccountID) ([]*domain.Role, error) {
	if r.err != nil {
		return nil, r.err
	}
	roles := make([]*domain.Role, 0)
	for rid := range r.store.userRoles[userID] {
		if _, ok := r.store.roles[rid]; ok {
			roles = append(roles, r.store.hydrateRole(rid))
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

type memPermissionRepo struct {
	store *memStore
	err   error
}

func (r *memPermissionRepo) Create(_ context.Context, permission *domain.Permission) error {
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.store.perms {
		if existing.Name.Equals(permission.Name) {
			return repository.ErrDuplicate
		}
	}
	r.store.perms[permission.ID] = domain.RehydratePermission(
		permission.ID, permission.Name, permission.Description, permission.Type, permission.IsSystemDefined,
	)
	return nil
}

func (r *memPermissionRepo) GetByID(_ context.Context, id domain.PermissionID) (*domain.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	permission, ok := r.store.perms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return permission, nil
}

func (r *memPermissionRepo) GetByName(_ context.Context, name domain.PermissionName) (*domain.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, permission := range r.store.perms {
		if permission.Name.Equals(name) {
			return permission, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPermissionRepo) Update(_ context.Context, permission *domain.Permission) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.store.perms[permission.ID]; !ok {
		return repository.ErrNotFound
	}
	r.store.perms[permission.ID] = domain.RehydratePermission(
		permission.ID, permission.Name, permission.Description, permission.Type, permission.IsSystemDefined,
	)
	return nil
}

func (r *memPermissionRepo) ListByRole(_ context.Context, roleID domain.RoleID) ([]domain.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	permissions := make([]domain.Permission, 0)
	for pid := range r.store.rolePerms[roleID] {
		if permission, ok := r.store.perms[pid]; ok {
			permissions = append(permissions, *permission)
		}
	}
	return permissions, nil
}

func (r *memPermissionRepo) ListByRoles(ctx context.Context, roleIDs []domain.RoleID) (map[domain.RoleID][]domain.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	result := make(map[domain.RoleID][]domain.Permission, len(roleIDs))
	for _, rid := range roleIDs {
		permissions, err := r.ListByRole(ctx, rid)
		if err != nil {
			return nil, err
		}
		result[rid] = permissions
	}
	return result, nil
}

func (r *memPermissionRepo) ListByUser(ctx context.Context, userID domain.UserAccountID) ([]domain.Permission, error) {
	if r.err != nil {
		return nil, r.err
	}
	seen := make(map[domain.PermissionID]struct{})
	permissions := make([]domain.Permission, 0)
	for rid := range r.store.userRoles[userID] {
		fromRole, err := r.ListByRole(ctx, rid)
		if err != nil {
			return nil, err
		}
		for _, permission := range fromRole {
			if _, ok := seen[permission.ID]; ok {
				continue
			}
			seen[permission.ID] = struct{}{}
			permissions = append(permissions, permission)
		}
	}
	return permissions, nil
}

type capturePublisher struct {
	events []domain.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, events ...domain.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

type fakeDirectory struct {
	byUsername map[string]*port.DirectoryUser
	byEmail    map[string]*port.DirectoryUser
	groups     map[string][]string
	calls      int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		byUsername: make(map[string]*port.DirectoryUser),
		byEmail:    make(map[string]*port.DirectoryUser),
		groups:     make(map[string][]string),
	}
}

func (d *fakeDirectory) GetUserByObjectID(_ context.Context, objectID string) (*port.DirectoryUser, error) {
	d.calls++
	for _, user := range d.byUsername {
		if user.ObjectID == objectID {
			return user, nil
		}
	}
	return nil, domain.NotFoundf("directory user %q not found", objectID)
}

func (d *fakeDirectory) GetUserByUsername(_ context.Context, username string) (*port.DirectoryUser, error) {
	d.calls++
	user, ok := d.byUsername[username]
	if !ok {
		return nil, domain.NotFoundf("directory user %q not found", username)
	}
	return user, nil
}

func (d *fakeDirectory) GetUserByEmail(_ context.Context, email string) (*port.DirectoryUser, error) {
	d.calls++
	user, ok := d.byEmail[email]
	if !ok {
		return nil, domain.NotFoundf("directory user %q not found", email)
	}
	return user, nil
}

func (d *fakeDirectory) ListGroupNames(_ context.Context, objectID string) ([]string, error) {
	d.calls++
	return d.groups[objectID], nil
}

type fakeCache struct {
	roles       map[string][]string
	permissions map[string][]string
	err         error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		roles:       make(map[string][]string),
		permissions: make(map[string][]string),
	}
}

func (c *fakeCache) GetRoles(_ context.Context, userID string) ([]string, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	roles, ok := c.roles[userID]
	return roles, ok, nil
}

func (c *fakeCache) SetRoles(_ context.Context, userID string, roles []string) error {
	if c.err != nil {
		return c.err
	}
	c.roles[userID] = roles
	return nil
}

func (c *fakeCache) GetPermissions(_ context.Context, userID string) ([]string, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	permissions, ok := c.permissions[userID]
	return permissions, ok, nil
}

func (c *fakeCache) SetPermissions(_ context.Context, userID string, permissions []string) error {
	if c.err != nil {
		return c.err
	}
	c.permissions[userID] = permissions
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	if c.err != nil {
		return c.err
	}
	delete(c.roles, userID)
	delete(c.permissions, userID)
	return nil
}

// fakeTransactor mimics transactional semantics over the in-memory store:
// an error from fn restores the pre-transaction state, so partial writes
// never survive a failure.
type fakeTransactor struct {
	env      *testEnv
	beginErr error
}

func (t *fakeTransactor) WithinTx(_ context.Context, fn func(repos port.RepositorySet) error) error {
	if t.beginErr != nil {
		return t.beginErr
	}
	saved := t.env.store.snapshot()
	savedHashes := make(map[domain.UserAccountID]string, len(t.env.creds.hashes))
	for id, hash := range t.env.creds.hashes {
		savedHashes[id] = hash
	}

	err := fn(port.RepositorySet{
		Users:       t.env.users,
		Credentials: t.env.creds,
		Roles:       t.env.roles,
		Permissions: t.env.perms,
	})
	if err != nil {
		t.env.store.restore(saved)
		t.env.creds.hashes = savedHashes
		return err
	}
	return nil
}

// testEnv bundles one provider wiring over a fresh in-memory store.
type testEnv struct {
	store     *memStore
	users     *memUserRepo
	roles     *memRoleRepo
	perms     *memPermissionRepo
	creds     *memCredentialRepo
	tx        *fakeTransactor
	publisher *capturePublisher
	directory *fakeDirectory
	cache     *fakeCache
}

func newTestEnv() *testEnv {
	store := newMemStore()
	env := &testEnv{
		store:     store,
		users:     &memUserRepo{store: store},
		roles:     &memRoleRepo{store: store},
		perms:     &memPermissionRepo{store: store},
		creds:     newMemCredentialRepo(),
		publisher: &capturePublisher{},
		directory: newFakeDirectory(),
		cache:     newFakeCache(),
	}
	env.tx = &fakeTransactor{env: env}
	return env
}

func (e *testEnv) resolver() *usecase.ResolverService {
	return usecase.NewResolverService(e.roles, e.perms)
}

func (e *testEnv) deps() Deps {
	return Deps{
		Users:       e.users,
		Credentials: e.creds,
		Roles:       e.roles,
		Permissions: e.perms,
		Tx:          e.tx,
		Resolver:    e.resolver(),
		Publisher:   e.publisher,
		Directory:   e.directory,
		Cache:       e.cache,
		Passwords:   testPasswordPolicy(),
		Logger:      zap.NewNop(),
	}
}

var _ port.UserRepository = (*memUserRepo)(nil)
var _ port.CredentialRepository = (*memCredentialRepo)(nil)
var _ port.RoleRepository = (*memRoleRepo)(nil)
var _ port.PermissionRepository = (*memPermissionRepo)(nil)
var _ port.Transactor = (*fakeTransactor)(nil)
var _ port.EventPublisher = (*capturePublisher)(nil)
var _ port.DirectoryClient = (*fakeDirectory)(nil)
var _ port.RolePermissionCache = (*fakeCache)(nil)
