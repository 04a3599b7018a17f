package models

import "time"

// File lifecycle states.
const (
	FileStateActive  = "active"
	FileStateTrashed = "trashed"
)

// File is the metadata of one client-encrypted blob. The ciphertext lives in
// the blob store under BlobKey.
type File struct {
	ID               string
	OwnerID          string
	BlobKey          string
	SizeBytes        int64
	MimeType         string
	CreatedAt        time.Time
	DeletedAt        *time.Time
	ScheduledPurgeAt *time.Time
}

// State derives the lifecycle state from the deletion fields.
func (f *File) State() string {
	if f.DeletedAt != nil {
		return FileStateTrashed
	}
	return FileStateActive
}

// FileKeyGrant records that RecipientUserID holds the file's DEK sealed to
// their own public key. The owner always holds one.
type FileKeyGrant struct {
	FileID          string
	RecipientUserID string
	SealedDEK       string
	SharedByUserID  string
	SharedAt        time.Time
}

// UploadTicket tells the client where to PUT the ciphertext.
type UploadTicket struct {
	BlobKey string
	URL     string
}
