package models

import "time"

type Folder struct {
	ID                      string
	OwnerID                 string
	Name                    string
	SealedFolderKeyForOwner string
	CreatedAt               time.Time
}

// FolderKeyGrant records that RecipientUserID holds the folder key sealed to
// their public key.
type FolderKeyGrant struct {
	FolderID        string
	RecipientUserID string
	SealedFolderKey string
	SharedByUserID  string
	SharedAt        time.Time
}

// FolderFileKey places a file inside a folder: the file's DEK encrypted under
// the folder key. Any folder-key holder can open it.
type FolderFileKey struct {
	FileID                  string
	FolderID                string
	DEKSealedUnderFolderKey string
	WrappingNonce           string
}

// FolderEntry is a folder as seen by one grant holder, with that holder's
// sealed copy of the folder key.
type FolderEntry struct {
	Folder          Folder
	SealedFolderKey string
}
