package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/cryptox"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/config"
	"github.com/dmitrijs2005/sealvault/internal/server/events"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/filegrants"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/folderfiles"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/foldergrants"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/identities"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/questions"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/recoverytokens"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/settings"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/users"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

var testHashParams = cryptox.Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 32, SaltLen: 16}

type pairKey struct{ a, b string }

// memStore is an in-memory stand-in for the database. Every repository
// handed out by fakeManager shares it and ignores the DBTX argument.
type memStore struct {
	mu             sync.Mutex
	users          map[string]*models.User
	credentials    map[string]string
	refreshTokens  map[string]*models.RefreshToken
	identities     map[string]*models.Identity
	settings       map[string]*models.UserSettings
	files          map[string]*models.File
	fileGrants     map[pairKey]*models.FileKeyGrant
	folders        map[string]*models.Folder
	folderGrants   map[pairKey]*models.FolderKeyGrant
	folderFiles    map[pairKey]*models.FolderFileKey
	questions      map[string]*models.SecurityQuestion
	recoveryTokens map[string]*models.RecoveryToken

	failOn map[string]error
	clock  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:          map[string]*models.User{},
		credentials:    map[string]string{},
		refreshTokens:  map[string]*models.RefreshToken{},
		identities:     map[string]*models.Identity{},
		settings:       map[string]*models.UserSettings{},
		files:          map[string]*models.File{},
		fileGrants:     map[pairKey]*models.FileKeyGrant{},
		folders:        map[string]*models.Folder{},
		folderGrants:   map[pairKey]*models.FolderKeyGrant{},
		folderFiles:    map[pairKey]*models.FolderFileKey{},
		questions:      map[string]*models.SecurityQuestion{},
		recoveryTokens: map[string]*models.RecoveryToken{},
		failOn:         map[string]error{},
		clock:          time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) fail(op string) error {
	return s.failOn[op]
}

var errForeignKey = errors.New("foreign key violation")

func cloneRows[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

// snapshot copies every table so a failed transaction can be undone.
func (s *memStore) snapshot() *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds := make(map[string]string, len(s.credentials))
	for k, v := range s.credentials {
		creds[k] = v
	}
	return &memStore{
		users:          cloneRows(s.users),
		credentials:    creds,
		refreshTokens:  cloneRows(s.refreshTokens),
		identities:     cloneRows(s.identities),
		settings:       cloneRows(s.settings),
		files:          cloneRows(s.files),
		fileGrants:     cloneRows(s.fileGrants),
		folders:        cloneRows(s.folders),
		folderGrants:   cloneRows(s.folderGrants),
		folderFiles:    cloneRows(s.folderFiles),
		questions:      cloneRows(s.questions),
		recoveryTokens: cloneRows(s.recoveryTokens),
	}
}

func (s *memStore) rollback(snap *memStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.credentials, s.refreshTokens = snap.users, snap.credentials, snap.refreshTokens
	s.identities, s.settings = snap.identities, snap.settings
	s.files, s.fileGrants = snap.files, snap.fileGrants
	s.folders, s.folderGrants, s.folderFiles = snap.folders, snap.folderGrants, snap.folderFiles
	s.questions, s.recoveryTokens = snap.questions, snap.recoveryTokens
}

// The reference checks below mirror the REFERENCES clauses of the schema.
// Callers hold s.mu.

func (s *memStore) fileReferenced(id string) bool {
	for k := range s.fileGrants {
		if k.a == id {
			return true
		}
	}
	for k := range s.folderFiles {
		if k.b == id {
			return true
		}
	}
	return false
}

func (s *memStore) folderReferenced(id string) bool {
	for k := range s.folderGrants {
		if k.a == id {
			return true
		}
	}
	for k := range s.folderFiles {
		if k.a == id {
			return true
		}
	}
	return false
}

func (s *memStore) userReferenced(id string) bool {
	_, cred := s.credentials[id]
	_, ident := s.identities[id]
	_, set := s.settings[id]
	if cred || ident || set {
		return true
	}
	for _, t := range s.refreshTokens {
		if t.UserID == id {
			return true
		}
	}
	for _, f := range s.files {
		if f.OwnerID == id {
			return true
		}
	}
	for _, f := range s.folders {
		if f.OwnerID == id {
			return true
		}
	}
	for k := range s.fileGrants {
		if k.b == id {
			return true
		}
	}
	for k := range s.folderGrants {
		if k.b == id {
			return true
		}
	}
	for _, q := range s.questions {
		if q.UserID == id {
			return true
		}
	}
	return false
}

type fakeManager struct{ s *memStore }

func (m fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeManager) Users(dbx.DBTX) users.Repository              { return fakeUsers{m.s} }
func (m fakeManager) Credentials(dbx.DBTX) credentials.Repository  { return fakeCredentials{m.s} }
func (m fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return fakeRefreshTokens{m.s}
}
func (m fakeManager) Identities(dbx.DBTX) identities.Repository     { return fakeIdentities{m.s} }
func (m fakeManager) Settings(dbx.DBTX) settings.Repository         { return fakeSettings{m.s} }
func (m fakeManager) Files(dbx.DBTX) files.Repository               { return fakeFiles{m.s} }
func (m fakeManager) FileGrants(dbx.DBTX) filegrants.Repository     { return fakeFileGrants{m.s} }
func (m fakeManager) Folders(dbx.DBTX) folders.Repository           { return fakeFolders{m.s} }
func (m fakeManager) FolderGrants(dbx.DBTX) foldergrants.Repository { return fakeFolderGrants{m.s} }
func (m fakeManager) FolderFiles(dbx.DBTX) folderfiles.Repository   { return fakeFolderFiles{m.s} }
func (m fakeManager) Questions(dbx.DBTX) questions.Repository       { return fakeQuestions{m.s} }
func (m fakeManager) RecoveryTokens(dbx.DBTX) recoverytokens.Repository {
	return fakeRecoveryTokens{m.s}
}

// users

type fakeUsers struct{ s *memStore }

func (r fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Email == u.Email {
			return nil, common.ErrorConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.s.tick()
	cp := *u
	r.s.users[u.ID] = &cp
	return u, nil
}

func (r fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Email == email {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (r fakeUsers) LockActive(ctx context.Context, id string) (string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Status, nil
}

func (r fakeUsers) MarkErasing(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	x.Status = common.UserStatusErasing
	cp := *x
	return &cp, nil
}

func (r fakeUsers) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return 0, nil
	}
	if r.s.userReferenced(id) {
		return 0, errForeignKey
	}
	delete(r.s.users, id)
	return 1, nil
}

// credentials

type fakeCredentials struct{ s *memStore }

func (r fakeCredentials) Upsert(_ context.Context, userID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.credentials[userID] = hash
	return nil
}

func (r fakeCredentials) Get(_ context.Context, userID string) (*models.Credential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.credentials[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.Credential{UserID: userID, PasswordHash: h}, nil
}

func (r fakeCredentials) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.credentials[userID]; !ok {
		return 0, nil
	}
	delete(r.s.credentials, userID)
	return 1, nil
}

// refresh tokens

type fakeRefreshTokens struct{ s *memStore }

func (r fakeRefreshTokens) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	r.s.refreshTokens[token] = &models.RefreshToken{
		ID: uuid.NewString(), UserID: userID, Token: token, Expires: now.Add(validity), CreatedAt: now,
	}
	return nil
}

func (r fakeRefreshTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refreshTokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r fakeRefreshTokens) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.refreshTokens, token)
	return nil
}

func (r fakeRefreshTokens) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.refreshTokens {
		if t.UserID == userID {
			delete(r.s.refreshTokens, k)
			n++
		}
	}
	return n, nil
}

// identities

type fakeIdentities struct{ s *memStore }

func (r fakeIdentities) Create(_ context.Context, id *models.Identity) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.identities[id.UserID]; ok {
		return nil, common.ErrorConflict
	}
	id.CreatedAt = r.s.tick()
	cp := *id
	r.s.identities[id.UserID] = &cp
	return id, nil
}

func (r fakeIdentities) Get(_ context.Context, userID string) (*models.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.identities[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (r fakeIdentities) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.identities[userID]; !ok {
		return 0, nil
	}
	delete(r.s.identities, userID)
	return 1, nil
}

// settings

type fakeSettings struct{ s *memStore }

func (r fakeSettings) Get(_ context.Context, userID string) (*models.UserSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.settings[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (r fakeSettings) Upsert(_ context.Context, us *models.UserSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	us.UpdatedAt = r.s.tick()
	cp := *us
	r.s.settings[us.UserID] = &cp
	return nil
}

func (r fakeSettings) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.settings[userID]; !ok {
		return 0, nil
	}
	delete(r.s.settings, userID)
	return 1, nil
}

// files

type fakeFiles struct{ s *memStore }

func (r fakeFiles) Create(_ context.Context, f *models.File) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("files.Create"); err != nil {
		return nil, err
	}
	for _, x := range r.s.files {
		if x.BlobKey == f.BlobKey {
			return nil, common.ErrorConflict
		}
	}
	f.CreatedAt = r.s.tick()
	cp := *f
	r.s.files[f.ID] = &cp
	return f, nil
}

func (r fakeFiles) Get(_ context.Context, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (r fakeFiles) Lock(ctx context.Context, id string) (*models.File, error) {
	return r.Get(ctx, id)
}

func (r fakeFiles) list(keep func(*models.File) bool) []models.File {
	var out []models.File
	for _, f := range r.s.files {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r fakeFiles) ListAccessible(_ context.Context, userID string) ([]models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(f *models.File) bool {
		_, ok := r.s.fileGrants[pairKey{f.ID, userID}]
		return ok && f.DeletedAt == nil
	}), nil
}

func (r fakeFiles) ListTrashed(_ context.Context, ownerID string) ([]models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(f *models.File) bool { return f.OwnerID == ownerID && f.DeletedAt != nil }), nil
}

func (r fakeFiles) ListByOwner(_ context.Context, ownerID string) ([]models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(f *models.File) bool { return f.OwnerID == ownerID }), nil
}

func (r fakeFiles) SoftDelete(_ context.Context, id string, deletedAt, purgeAt time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.DeletedAt != nil {
		return 0, nil
	}
	f.DeletedAt, f.ScheduledPurgeAt = &deletedAt, &purgeAt
	return 1, nil
}

func (r fakeFiles) Restore(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.DeletedAt == nil {
		return 0, nil
	}
	f.DeletedAt, f.ScheduledPurgeAt = nil, nil
	return 1, nil
}

func isDue(f *models.File, now time.Time) bool {
	return f.DeletedAt != nil && f.ScheduledPurgeAt != nil && !f.ScheduledPurgeAt.After(now)
}

func (r fakeFiles) ListDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, f := range r.list(func(f *models.File) bool { return isDue(f, now) }) {
		if len(ids) == limit {
			break
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (r fakeFiles) LockTrashedDue(_ context.Context, id string, now time.Time) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || !isDue(f, now) {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (r fakeFiles) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.files[id]; !ok {
		return 0, nil
	}
	if r.s.fileReferenced(id) {
		return 0, errForeignKey
	}
	delete(r.s.files, id)
	return 1, nil
}

func (r fakeFiles) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, f := range r.s.files {
		if f.OwnerID == ownerID && r.s.fileReferenced(id) {
			return 0, errForeignKey
		}
	}
	var n int64
	for id, f := range r.s.files {
		if f.OwnerID == ownerID {
			delete(r.s.files, id)
			n++
		}
	}
	return n, nil
}

// file grants

type fakeFileGrants struct{ s *memStore }

func (r fakeFileGrants) Create(_ context.Context, g *models.FileKeyGrant) (*models.FileKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pairKey{g.FileID, g.RecipientUserID}
	if _, ok := r.s.fileGrants[k]; ok {
		return nil, common.ErrorConflict
	}
	g.SharedAt = r.s.tick()
	cp := *g
	r.s.fileGrants[k] = &cp
	return g, nil
}

func (r fakeFileGrants) Get(_ context.Context, fileID, recipient string) (*models.FileKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.fileGrants[pairKey{fileID, recipient}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *g
	return &cp, nil
}

func (r fakeFileGrants) Delete(_ context.Context, fileID, recipient string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pairKey{fileID, recipient}
	if _, ok := r.s.fileGrants[k]; !ok {
		return 0, nil
	}
	delete(r.s.fileGrants, k)
	return 1, nil
}

func (r fakeFileGrants) ListByFile(_ context.Context, fileID string) ([]models.FileKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FileKeyGrant
	for _, g := range r.s.fileGrants {
		if g.FileID == fileID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SharedAt.Before(out[j].SharedAt) })
	return out, nil
}

func (r fakeFileGrants) DeleteByFile(_ context.Context, fileID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k := range r.s.fileGrants {
		if k.a == fileID {
			delete(r.s.fileGrants, k)
			n++
		}
	}
	return n, nil
}

func (r fakeFileGrants) DeleteForUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k := range r.s.fileGrants {
		f, ok := r.s.files[k.a]
		if k.b == userID || (ok && f.OwnerID == userID) {
			delete(r.s.fileGrants, k)
			n++
		}
	}
	return n, nil
}

// folders

type fakeFolders struct{ s *memStore }

func (r fakeFolders) Create(_ context.Context, f *models.Folder) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f.CreatedAt = r.s.tick()
	cp := *f
	r.s.folders[f.ID] = &cp
	return f, nil
}

func (r fakeFolders) Get(_ context.Context, id string) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (r fakeFolders) ListAccessible(_ context.Context, userID string) ([]models.FolderEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FolderEntry
	for k, g := range r.s.folderGrants {
		if k.b != userID {
			continue
		}
		if f, ok := r.s.folders[k.a]; ok {
			out = append(out, models.FolderEntry{Folder: *f, SealedFolderKey: g.SealedFolderKey})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder.CreatedAt.Before(out[j].Folder.CreatedAt) })
	return out, nil
}

func (r fakeFolders) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.folders[id]; !ok {
		return 0, nil
	}
	if r.s.folderReferenced(id) {
		return 0, errForeignKey
	}
	delete(r.s.folders, id)
	return 1, nil
}

func (r fakeFolders) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, f := range r.s.folders {
		if f.OwnerID == ownerID && r.s.folderReferenced(id) {
			return 0, errForeignKey
		}
	}
	var n int64
	for id, f := range r.s.folders {
		if f.OwnerID == ownerID {
			delete(r.s.folders, id)
			n++
		}
	}
	return n, nil
}

// folder grants

type fakeFolderGrants struct{ s *memStore }

func (r fakeFolderGrants) Create(_ context.Context, g *models.FolderKeyGrant) (*models.FolderKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pairKey{g.FolderID, g.RecipientUserID}
	if _, ok := r.s.folderGrants[k]; ok {
		return nil, common.ErrorConflict
	}
	g.SharedAt = r.s.tick()
	cp := *g
	r.s.folderGrants[k] = &cp
	return g, nil
}

func (r fakeFolderGrants) Get(_ context.Context, folderID, recipient string) (*models.FolderKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.folderGrants[pairKey{folderID, recipient}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *g
	return &cp, nil
}

func (r fakeFolderGrants) Delete(_ context.Context, folderID, recipient string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pairKey{folderID, recipient}
	if _, ok := r.s.folderGrants[k]; !ok {
		return 0, nil
	}
	delete(r.s.folderGrants, k)
	return 1, nil
}

func (r fakeFolderGrants) ListByFolder(_ context.Context, folderID string) ([]models.FolderKeyGrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FolderKeyGrant
	for _, g := range r.s.folderGrants {
		if g.FolderID == folderID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SharedAt.Before(out[j].SharedAt) })
	return out, nil
}

func (r fakeFolderGrants) DeleteByFolder(_ context.Context, folderID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k := range r.s.folderGrants {
		if k.a == folderID {
			delete(r.s.folderGrants, k)
			n++
		}
	}
	return n, nil
}

func (r fakeFolderGrants) DeleteForUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k := range r.s.folderGrants {
		f, ok := r.s.folders[k.a]
		if k.b == userID || (ok && f.OwnerID == userID) {
			delete(r.s.folderGrants, k)
			n++
		}
	}
	return n, nil
}

// folder file keys, keyed by (folder, file)

type fakeFolderFiles struct{ s *memStore }

func (r fakeFolderFiles) Create(_ context.Context, k *models.FolderFileKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pk := pairKey{k.FolderID, k.FileID}
	if _, ok := r.s.folderFiles[pk]; ok {
		return common.ErrorConflict
	}
	cp := *k
	r.s.folderFiles[pk] = &cp
	return nil
}

func (r fakeFolderFiles) Delete(_ context.Context, folderID, fileID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pk := pairKey{folderID, fileID}
	if _, ok := r.s.folderFiles[pk]; !ok {
		return 0, nil
	}
	delete(r.s.folderFiles, pk)
	return 1, nil
}

func (r fakeFolderFiles) ListByFolder(_ context.Context, folderID string) ([]models.FolderFileKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FolderFileKey
	for pk, k := range r.s.folderFiles {
		f, ok := r.s.files[pk.b]
		if pk.a == folderID && ok && f.DeletedAt == nil {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (r fakeFolderFiles) FindAccessible(_ context.Context, fileID, userID string) (*models.KeyPath, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for pk, k := range r.s.folderFiles {
		if pk.b != fileID {
			continue
		}
		g, ok := r.s.folderGrants[pairKey{pk.a, userID}]
		if !ok {
			continue
		}
		return &models.KeyPath{
			Kind:                    models.KeyPathFolder,
			FileID:                  fileID,
			FolderID:                pk.a,
			SealedFolderKey:         g.SealedFolderKey,
			DEKSealedUnderFolderKey: k.DEKSealedUnderFolderKey,
			WrappingNonce:           k.WrappingNonce,
		}, nil
	}
	return nil, common.ErrorNotFound
}

func (r fakeFolderFiles) deleteWhere(match func(pairKey) bool) int64 {
	var n int64
	for pk := range r.s.folderFiles {
		if match(pk) {
			delete(r.s.folderFiles, pk)
			n++
		}
	}
	return n
}

func (r fakeFolderFiles) DeleteByFile(_ context.Context, fileID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deleteWhere(func(pk pairKey) bool { return pk.b == fileID }), nil
}

func (r fakeFolderFiles) DeleteByFolder(_ context.Context, folderID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deleteWhere(func(pk pairKey) bool { return pk.a == folderID }), nil
}

func (r fakeFolderFiles) DeleteForUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.deleteWhere(func(pk pairKey) bool {
		fo, okFolder := r.s.folders[pk.a]
		fi, okFile := r.s.files[pk.b]
		return (okFolder && fo.OwnerID == userID) || (okFile && fi.OwnerID == userID)
	}), nil
}

// security questions

type fakeQuestions struct{ s *memStore }

func (r fakeQuestions) LockUser(context.Context, string) error { return nil }

func (r fakeQuestions) Create(_ context.Context, q *models.SecurityQuestion) (*models.SecurityQuestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q.CreatedAt = r.s.tick()
	cp := *q
	r.s.questions[q.ID] = &cp
	return q, nil
}

func (r fakeQuestions) CountByUser(ctx context.Context, userID string) (int, error) {
	qs, err := r.ListByUser(ctx, userID)
	return len(qs), err
}

func (r fakeQuestions) ListByUser(_ context.Context, userID string) ([]models.SecurityQuestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.SecurityQuestion
	for _, q := range r.s.questions {
		if q.UserID == userID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r fakeQuestions) Get(_ context.Context, id string) (*models.SecurityQuestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.questions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *q
	return &cp, nil
}

func (r fakeQuestions) Delete(_ context.Context, id, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.questions[id]
	if !ok || q.UserID != userID {
		return 0, nil
	}
	delete(r.s.questions, id)
	return 1, nil
}

func (r fakeQuestions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, q := range r.s.questions {
		if q.UserID == userID {
			delete(r.s.questions, id)
			n++
		}
	}
	return n, nil
}

// recovery tokens

type fakeRecoveryTokens struct{ s *memStore }

func (r fakeRecoveryTokens) LockIdentifier(context.Context, string) error { return nil }

func (r fakeRecoveryTokens) Create(_ context.Context, t *models.RecoveryToken) (*models.RecoveryToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.CreatedAt = r.s.tick()
	cp := *t
	r.s.recoveryTokens[t.ID] = &cp
	return t, nil
}

func (r fakeRecoveryTokens) FindByValue(_ context.Context, value string) (*models.RecoveryToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.recoveryTokens {
		if t.TokenValue == value {
			cp := *t
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeRecoveryTokens) Delete(_ context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.recoveryTokens[id]; !ok {
		return 0, nil
	}
	delete(r.s.recoveryTokens, id)
	return 1, nil
}

func (r fakeRecoveryTokens) DeleteByIdentifier(_ context.Context, identifier string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.recoveryTokens {
		if t.Identifier == identifier {
			delete(r.s.recoveryTokens, id)
			n++
		}
	}
	return n, nil
}

// fakeBlobs is an in-memory blob.Store. Keys listed in failDelete refuse
// deletion.
type fakeBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failDelete map[string]bool
	deleted    []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, failDelete: map[string]bool{}}
}

func (b *fakeBlobs) Put(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = body
	return nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return body, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete[key] {
		return errors.New("blob store unavailable")
	}
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBlobs) PresignPut(_ context.Context, key string) (string, error) {
	return "https://blobs.test/put/" + key, nil
}

func (b *fakeBlobs) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

type recordingPublisher struct {
	events []events.AccountErased
	err    error
}

func (p *recordingPublisher) PublishAccountErased(_ context.Context, ev events.AccountErased) error {
	p.events = append(p.events, ev)
	return p.err
}

// env wires every service to one memStore and a real sqlite handle, which
// only serves dbx.WithTx begin and commit. A transaction that returns an
// error restores the store to its state before the transaction began.
type env struct {
	t         *testing.T
	store     *memStore
	blobs     *fakeBlobs
	publisher *recordingPublisher

	users    *UserService
	ids      *IdentityService
	settings *SettingsService
	files    *FileService
	sharing  *SharingService
	folders  *FolderService
	recovery *RecoveryService
	erasure  *ErasureService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := newMemStore()
	m := fakeManager{store}

	prevWithTx := withTx
	withTx = func(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
		snap := store.snapshot()
		err := dbx.WithTx(ctx, db, opts, fn)
		if err != nil {
			store.rollback(snap)
		}
		return err
	}
	t.Cleanup(func() { withTx = prevWithTx })
	blobs := newFakeBlobs()
	pub := &recordingPublisher{}
	log := logging.Nop()
	now := func() time.Time { return store.clock }

	cfg := &config.Config{}
	cfg.LoadDefaults()

	e := &env{
		t:         t,
		store:     store,
		blobs:     blobs,
		publisher: pub,
		users:     NewUserService(db, m, cfg, log),
		ids:       NewIdentityService(db, m, log),
		settings:  NewSettingsService(db, m, cfg.DefaultRetentionDays),
		files:     NewFileService(db, m, blobs, cfg.DefaultRetentionDays, log),
		sharing:   NewSharingService(db, m, log),
		folders:   NewFolderService(db, m, log),
		recovery:  NewRecoveryService(db, m, nil, cfg.RecoveryTokenTTL, log),
		erasure:   NewErasureService(db, m, blobs, pub, log),
	}
	e.users.hashParams = testHashParams
	e.users.now = now
	e.recovery.hashParams = testHashParams
	e.recovery.now = now
	e.files.now = now
	e.erasure.now = now
	return e
}

// member is a registered user with a device identity.
type member struct {
	caller auth.Caller
	email  string
	id     *envelope.Identity
}

func (m member) box() string { return m.id.PublicKeys().X25519 }

func (e *env) newMember(email string) member {
	e.t.Helper()
	ctx := context.Background()
	u, err := e.users.Register(ctx, email, "correct horse battery")
	if err != nil {
		e.t.Fatalf("register %s: %v", email, err)
	}
	id, err := envelope.NewIdentity()
	if err != nil {
		e.t.Fatal(err)
	}
	c := auth.Caller{UserID: u.ID}
	if _, err := e.ids.Register(ctx, c, id.PublicKeys()); err != nil {
		e.t.Fatalf("identity %s: %v", email, err)
	}
	return member{caller: c, email: u.Email, id: id}
}

// sealFor seals key to m's public key.
func (e *env) sealFor(m member, key []byte) string {
	e.t.Helper()
	s, err := envelope.Seal(key, m.box())
	if err != nil {
		e.t.Fatal(err)
	}
	return s
}

// upload creates an active file owned by m and returns it with its DEK.
func (e *env) upload(m member) (*models.File, []byte) {
	e.t.Helper()
	ctx := context.Background()
	dek, err := envelope.GenerateKey()
	if err != nil {
		e.t.Fatal(err)
	}
	ticket, err := e.files.RequestUpload(ctx, m.caller)
	if err != nil {
		e.t.Fatalf("request upload: %v", err)
	}
	_ = e.blobs.Put(ctx, ticket.BlobKey, []byte("ciphertext"))
	f, err := e.files.CompleteUpload(ctx, m.caller, ticket.BlobKey, 10, "application/octet-stream", e.sealFor(m, dek))
	if err != nil {
		e.t.Fatalf("complete upload: %v", err)
	}
	return f, dek
}
