package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) newFolder(owner member, name string) (*models.Folder, []byte) {
	e.t.Helper()
	fk, err := envelope.GenerateKey()
	require.NoError(e.t, err)
	folder, err := e.folders.CreateFolder(context.Background(), owner.caller, name, e.sealFor(owner, fk))
	require.NoError(e.t, err)
	return folder, fk
}

func (e *env) addToFolder(m member, folderID, fileID string, dek, folderKey []byte) {
	e.t.Helper()
	wrapped, nonce, err := envelope.WrapWithFolderKey(dek, folderKey)
	require.NoError(e.t, err)
	require.NoError(e.t, e.folders.AddFile(context.Background(), m.caller, folderID, fileID, wrapped, nonce))
}

func TestFolderShare_RecipientOpensFileThroughFolderKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Taxes")
	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)

	_, err := e.files.ResolveKey(ctx, b.caller, f.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)
	assert.NotContains(t, e.store.fileGrants, pairKey{f.ID, b.caller.UserID}, "sharing a folder creates no file grants")

	kp, err := e.files.ResolveKey(ctx, b.caller, f.ID)
	require.NoError(t, err)
	require.Equal(t, models.KeyPathFolder, kp.Kind)
	assert.Equal(t, folder.ID, kp.FolderID)

	gotFK, err := b.id.Unseal(kp.SealedFolderKey)
	require.NoError(t, err)
	gotDEK, err := envelope.UnwrapWithFolderKey(kp.DEKSealedUnderFolderKey, kp.WrappingNonce, gotFK)
	require.NoError(t, err)
	assert.Equal(t, dek, gotDEK)

	url, err := e.files.DownloadURL(ctx, b.caller, f.ID)
	require.NoError(t, err)
	assert.Contains(t, url, f.BlobKey)

	entries, err := e.folders.ListFolders(ctx, b.caller)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Taxes", entries[0].Folder.Name)

	items, err := e.folders.ListFolderFiles(ctx, b.caller, folder.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFolderShare_FilesAddedLaterAreVisible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Photos")
	_, err := e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)

	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)

	kp, err := e.files.ResolveKey(ctx, b.caller, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyPathFolder, kp.Kind)
}

func TestRevokeFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")
	c := e.newMember("carol@example.com")

	folder, fk := e.newFolder(a, "Shared")
	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)
	_, err := e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)

	assert.ErrorIs(t, e.folders.RevokeFolder(ctx, c.caller, folder.ID, b.caller.UserID), common.ErrorNotFound)
	assert.ErrorIs(t, e.folders.RevokeFolder(ctx, a.caller, folder.ID, a.caller.UserID), common.ErrorValidation)

	require.NoError(t, e.folders.RevokeFolder(ctx, a.caller, folder.ID, b.caller.UserID))
	require.NoError(t, e.folders.RevokeFolder(ctx, a.caller, folder.ID, b.caller.UserID), "revoking twice is a no-op")

	_, err = e.files.ResolveKey(ctx, b.caller, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = e.folders.ListFolderFiles(ctx, b.caller, folder.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRevokeFolder_KeepsPersonalGrant(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Mixed")
	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)
	_, err := e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)
	_, err = e.sharing.GrantAccess(ctx, a.caller, f.ID, b.caller.UserID, e.sealFor(b, dek))
	require.NoError(t, err)

	require.NoError(t, e.folders.RevokeFolder(ctx, a.caller, folder.ID, b.caller.UserID))

	kp, err := e.files.ResolveKey(ctx, b.caller, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyPathPersonal, kp.Kind)
}

func TestAddFile_Rules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Docs")
	f, dek := e.upload(a)
	wrapped, nonce, err := envelope.WrapWithFolderKey(dek, fk)
	require.NoError(t, err)

	assert.ErrorIs(t, e.folders.AddFile(ctx, b.caller, folder.ID, f.ID, wrapped, nonce), common.ErrorNotFound, "no folder grant")
	assert.ErrorIs(t, e.folders.AddFile(ctx, a.caller, folder.ID, f.ID, wrapped, "AAAA"), common.ErrorCrypto, "bad nonce")

	require.NoError(t, e.folders.AddFile(ctx, a.caller, folder.ID, f.ID, wrapped, nonce))
	assert.ErrorIs(t, e.folders.AddFile(ctx, a.caller, folder.ID, f.ID, wrapped, nonce), common.ErrorConflict)

	g, _ := e.upload(a)
	_, err = e.files.Trash(ctx, a.caller, g.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, e.folders.AddFile(ctx, a.caller, folder.ID, g.ID, wrapped, nonce), common.ErrorNotFound, "trashed file")
}

func TestAddFile_FolderOnlyAccessCannotRefile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	shared, fk := e.newFolder(a, "Shared")
	f, dek := e.upload(a)
	e.addToFolder(a, shared.ID, f.ID, dek, fk)
	_, err := e.folders.ShareFolder(ctx, a.caller, shared.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)

	kp, err := e.files.ResolveKey(ctx, b.caller, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyPathFolder, kp.Kind)

	own, ownKey := e.newFolder(b, "Mine")
	wrapped, nonce, err := envelope.WrapWithFolderKey(dek, ownKey)
	require.NoError(t, err)
	err = e.folders.AddFile(ctx, b.caller, own.ID, f.ID, wrapped, nonce)
	assert.ErrorIs(t, err, common.ErrorNotFound, "a personal grant is required")
	assert.NotContains(t, e.store.folderFiles, pairKey{own.ID, f.ID})
}

func TestRemoveFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Docs")
	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)

	assert.ErrorIs(t, e.folders.RemoveFile(ctx, b.caller, folder.ID, f.ID), common.ErrorNotFound)
	require.NoError(t, e.folders.RemoveFile(ctx, a.caller, folder.ID, f.ID))
	require.NoError(t, e.folders.RemoveFile(ctx, a.caller, folder.ID, f.ID))
	assert.Empty(t, e.store.folderFiles)
}

func TestListFolderAccess_ExcludesOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Docs")
	list, err := e.folders.ListFolderAccess(ctx, a.caller, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, a.caller.UserID, list.OwnerID)
	assert.Empty(t, list.SharedWith)

	_, err = e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)
	list, err = e.folders.ListFolderAccess(ctx, b.caller, folder.ID)
	require.NoError(t, err)
	require.Len(t, list.SharedWith, 1)
	assert.Equal(t, b.caller.UserID, list.SharedWith[0].UserID)
	assert.Equal(t, a.caller.UserID, list.SharedWith[0].SharedByUserID)
}

func TestDeleteFolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	b := e.newMember("bob@example.com")

	folder, fk := e.newFolder(a, "Old")
	f, dek := e.upload(a)
	e.addToFolder(a, folder.ID, f.ID, dek, fk)
	_, err := e.folders.ShareFolder(ctx, a.caller, folder.ID, b.caller.UserID, e.sealFor(b, fk))
	require.NoError(t, err)

	assert.ErrorIs(t, e.folders.DeleteFolder(ctx, b.caller, folder.ID), common.ErrorNotFound)
	require.NoError(t, e.folders.DeleteFolder(ctx, a.caller, folder.ID))

	assert.Empty(t, e.store.folders)
	assert.Empty(t, e.store.folderGrants)
	assert.Empty(t, e.store.folderFiles)
	assert.Contains(t, e.store.files, f.ID)
}

func TestCreateFolder_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newMember("alice@example.com")
	fk, _ := envelope.GenerateKey()

	_, err := e.folders.CreateFolder(ctx, a.caller, "   ", e.sealFor(a, fk))
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = e.folders.CreateFolder(ctx, a.caller, "ok", "short")
	assert.ErrorIs(t, err, common.ErrorCrypto)
}
