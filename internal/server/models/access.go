package models

import "time"

// Grantee is one non-owner entry of an access list.
type Grantee struct {
	UserID         string
	SharedByUserID string
	SharedAt       time.Time
}

// AccessList is the sharing projection of a file or folder. The owner is
// reported once and never repeated in SharedWith.
type AccessList struct {
	OwnerID    string
	SharedWith []Grantee
}

// Key path kinds returned by key resolution.
const (
	KeyPathPersonal = "personal"
	KeyPathFolder   = "folder"
)

// KeyPath is what a client needs to recover a file's DEK. For a personal path
// only SealedDEK is set; for a folder path the client unseals SealedFolderKey
// and then opens DEKSealedUnderFolderKey with WrappingNonce.
type KeyPath struct {
	Kind                    string
	FileID                  string
	SealedDEK               string
	FolderID                string
	SealedFolderKey         string
	DEKSealedUnderFolderKey string
	WrappingNonce           string
}
