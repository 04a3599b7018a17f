package client

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/netx"
	vault "github.com/dmitrijs2005/sealvault/internal/server/grpc"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

// RegisterIdentity publishes the public half of id for the logged-in user.
func (c *Client) RegisterIdentity(ctx context.Context, id *envelope.Identity) error {
	keys := id.PublicKeys()
	return c.call(ctx, "RegisterIdentity", &vault.RegisterIdentityRequest{
		X25519PublicKey:  keys.X25519,
		Ed25519PublicKey: keys.Ed25519,
	}, &vault.Identity{})
}

// PublicKeys fetches another user's registered identity.
func (c *Client) PublicKeys(ctx context.Context, userID string) (envelope.PublicKeys, error) {
	resp := &vault.Identity{}
	if err := c.call(ctx, "GetIdentity", &vault.UserRequest{UserID: userID}, resp); err != nil {
		return envelope.PublicKeys{}, err
	}
	return envelope.PublicKeys{X25519: resp.X25519PublicKey, Ed25519: resp.Ed25519PublicKey}, nil
}

// Upload encrypts content under a fresh DEK, stores the ciphertext through a
// presigned URL and registers the file with the DEK sealed to id.
func (c *Client) Upload(ctx context.Context, id *envelope.Identity, content []byte, mimeType string) (*vault.File, error) {
	ticket := &vault.UploadTicket{}
	if err := c.call(ctx, "RequestUpload", &vault.Empty{}, ticket); err != nil {
		return nil, err
	}

	dek, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dek)

	blob, err := envelope.EncryptContent(content, dek)
	if err != nil {
		return nil, err
	}
	sealed, err := envelope.Seal(dek, id.PublicKeys().X25519)
	if err != nil {
		return nil, err
	}
	if err := netx.UploadToPresignedURL(ctx, ticket.URL, blob); err != nil {
		return nil, fmt.Errorf("error uploading blob: %w", err)
	}

	file := &vault.File{}
	err = c.call(ctx, "CompleteUpload", &vault.CompleteUploadRequest{
		BlobKey:          ticket.BlobKey,
		SizeBytes:        int64(len(blob)),
		MimeType:         mimeType,
		SealedDEKForSelf: sealed,
	}, file)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Download fetches and decrypts a file the caller can reach through a
// personal grant or a folder.
func (c *Client) Download(ctx context.Context, id *envelope.Identity, fileID string) ([]byte, error) {
	dek, err := c.fileKey(ctx, id, fileID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(dek)

	u := &vault.URLResponse{}
	if err := c.call(ctx, "DownloadURL", &vault.FileRequest{FileID: fileID}, u); err != nil {
		return nil, err
	}
	blob, err := netx.DownloadFromPresignedURL(ctx, u.URL)
	if err != nil {
		return nil, fmt.Errorf("error downloading blob: %w", err)
	}
	return envelope.DecryptContent(blob, dek)
}

// ShareFile reseals the file's DEK to the recipient's public key and stores
// the grant.
func (c *Client) ShareFile(ctx context.Context, id *envelope.Identity, fileID, recipientUserID string) error {
	keys, err := c.PublicKeys(ctx, recipientUserID)
	if err != nil {
		return err
	}
	dek, err := c.fileKey(ctx, id, fileID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dek)

	sealed, err := envelope.Seal(dek, keys.X25519)
	if err != nil {
		return err
	}
	return c.call(ctx, "GrantAccess", &vault.GrantRequest{
		FileID:          fileID,
		RecipientUserID: recipientUserID,
		SealedDEK:       sealed,
	}, &vault.Grant{})
}

// RevokeFile removes a recipient's grant. Anything the recipient already
// downloaded stays readable to them.
func (c *Client) RevokeFile(ctx context.Context, fileID, recipientUserID string) error {
	return c.call(ctx, "RevokeAccess", &vault.RevokeRequest{FileID: fileID, RecipientUserID: recipientUserID}, &vault.Empty{})
}

// CreateFolder generates a folder key and registers the folder with the key
// sealed to id.
func (c *Client) CreateFolder(ctx context.Context, id *envelope.Identity, name string) (*vault.Folder, error) {
	fk, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(fk)

	sealed, err := envelope.Seal(fk, id.PublicKeys().X25519)
	if err != nil {
		return nil, err
	}
	folder := &vault.Folder{}
	if err := c.call(ctx, "CreateFolder", &vault.CreateFolderRequest{Name: name, SealedFolderKeyForOwner: sealed}, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// AddToFolder encrypts the file's DEK under the folder key so every folder
// member can open it.
func (c *Client) AddToFolder(ctx context.Context, id *envelope.Identity, folderID, fileID string) error {
	fk, err := c.folderKey(ctx, id, folderID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(fk)

	dek, err := c.fileKey(ctx, id, fileID)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(dek)

	wrapped, nonce, err := envelope.WrapWithFolderKey(dek, fk)
	if err != nil {
		return err
	}
	return c.call(ctx, "AddFileToFolder", &vault.AddFileToFolderRequest{
		FolderID:                folderID,
		FileID:                  fileID,
		DEKSealedUnderFolderKey: wrapped,
		WrappingNonce:           nonce,
	}, &vault.Empty{})
}

// ShareFolder reseals the folder key to the recipient. One call covers every
// file in the folder.
func (c *Client) ShareFolder(ctx context.Context, id *envelope.Identity, folderID, recipientUserID string) error {
	keys, err := c.PublicKeys(ctx, recipientUserID)
	if err != nil {
		return err
	}
	sealedForSelf, err := c.sealedFolderKey(ctx, folderID)
	if err != nil {
		return err
	}
	sealed, err := id.Reseal(sealedForSelf, keys.X25519)
	if err != nil {
		return err
	}
	return c.call(ctx, "ShareFolder", &vault.ShareFolderRequest{
		FolderID:        folderID,
		RecipientUserID: recipientUserID,
		SealedFolderKey: sealed,
	}, &vault.Grant{})
}

func (c *Client) fileKey(ctx context.Context, id *envelope.Identity, fileID string) ([]byte, error) {
	kp := &vault.KeyPath{}
	if err := c.call(ctx, "ResolveKey", &vault.FileRequest{FileID: fileID}, kp); err != nil {
		return nil, err
	}

	switch kp.Kind {
	case models.KeyPathPersonal:
		return id.Unseal(kp.SealedDEK)
	case models.KeyPathFolder:
		fk, err := id.Unseal(kp.SealedFolderKey)
		if err != nil {
			return nil, err
		}
		defer common.WipeByteArray(fk)
		return envelope.UnwrapWithFolderKey(kp.DEKSealedUnderFolderKey, kp.WrappingNonce, fk)
	default:
		return nil, fmt.Errorf("%w: unknown key path %q", common.ErrorCrypto, kp.Kind)
	}
}

func (c *Client) sealedFolderKey(ctx context.Context, folderID string) (string, error) {
	list := &vault.FolderList{}
	if err := c.call(ctx, "ListFolders", &vault.Empty{}, list); err != nil {
		return "", err
	}
	for _, f := range list.Folders {
		if f.ID == folderID {
			return f.SealedFolderKey, nil
		}
	}
	return "", common.ErrorNotFound
}

func (c *Client) folderKey(ctx context.Context, id *envelope.Identity, folderID string) ([]byte, error) {
	sealed, err := c.sealedFolderKey(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return id.Unseal(sealed)
}
