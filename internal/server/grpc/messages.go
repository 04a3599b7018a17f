package grpc

import (
	"time"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
)

// Request and response bodies travel as JSON with snake_case field names.

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RegisterIdentityRequest struct {
	X25519PublicKey  string `json:"x25519_public_key"`
	Ed25519PublicKey string `json:"ed25519_public_key"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type Identity struct {
	UserID           string    `json:"user_id"`
	X25519PublicKey  string    `json:"x25519_public_key"`
	Ed25519PublicKey string    `json:"ed25519_public_key"`
	CreatedAt        time.Time `json:"created_at"`
}

type Settings struct {
	TrashRetentionDays int `json:"trash_retention_days"`
}

type UploadTicket struct {
	BlobKey string `json:"blob_key"`
	URL     string `json:"url"`
}

type CompleteUploadRequest struct {
	BlobKey          string `json:"blob_key"`
	SizeBytes        int64  `json:"size_bytes"`
	MimeType         string `json:"mime_type"`
	SealedDEKForSelf string `json:"sealed_dek_for_self"`
}

type File struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	BlobKey          string     `json:"blob_key"`
	SizeBytes        int64      `json:"size_bytes"`
	MimeType         string     `json:"mime_type"`
	State            string     `json:"state"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	ScheduledPurgeAt *time.Time `json:"scheduled_purge_at,omitempty"`
}

type FileList struct {
	Files []File `json:"files"`
}

type FileRequest struct {
	FileID string `json:"file_id"`
}

type KeyPath struct {
	Kind                    string `json:"kind"`
	FileID                  string `json:"file_id"`
	SealedDEK               string `json:"sealed_dek,omitempty"`
	FolderID                string `json:"folder_id,omitempty"`
	SealedFolderKey         string `json:"sealed_folder_key,omitempty"`
	DEKSealedUnderFolderKey string `json:"dek_sealed_under_folder_key,omitempty"`
	WrappingNonce           string `json:"wrapping_nonce,omitempty"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type GrantRequest struct {
	FileID          string `json:"file_id"`
	RecipientUserID string `json:"recipient_user_id"`
	SealedDEK       string `json:"sealed_dek"`
}

type Grant struct {
	FileID          string    `json:"file_id,omitempty"`
	FolderID        string    `json:"folder_id,omitempty"`
	RecipientUserID string    `json:"recipient_user_id"`
	SharedByUserID  string    `json:"shared_by_user_id"`
	SharedAt        time.Time `json:"shared_at"`
}

type BulkGrantEntry struct {
	RecipientUserID string `json:"recipient_user_id"`
	SealedDEK       string `json:"sealed_dek"`
}

type BulkGrantRequest struct {
	FileID string           `json:"file_id"`
	Grants []BulkGrantEntry `json:"grants"`
}

type BulkGrantFailure struct {
	RecipientUserID string `json:"recipient_user_id"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

type BulkGrantResponse struct {
	Granted  int                `json:"granted"`
	Failures []BulkGrantFailure `json:"failures"`
}

type RevokeRequest struct {
	FileID          string `json:"file_id"`
	RecipientUserID string `json:"recipient_user_id"`
}

type Grantee struct {
	UserID         string    `json:"user_id"`
	SharedByUserID string    `json:"shared_by_user_id"`
	SharedAt       time.Time `json:"shared_at"`
}

type AccessList struct {
	OwnerID    string    `json:"owner_id"`
	SharedWith []Grantee `json:"shared_with"`
}

type CreateFolderRequest struct {
	Name                    string `json:"name"`
	SealedFolderKeyForOwner string `json:"sealed_folder_key_for_owner"`
}

type Folder struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	SealedFolderKey string    `json:"sealed_folder_key"`
	CreatedAt       time.Time `json:"created_at"`
}

type FolderList struct {
	Folders []Folder `json:"folders"`
}

type FolderRequest struct {
	FolderID string `json:"folder_id"`
}

type AddFileToFolderRequest struct {
	FolderID                string `json:"folder_id"`
	FileID                  string `json:"file_id"`
	DEKSealedUnderFolderKey string `json:"dek_sealed_under_folder_key"`
	WrappingNonce           string `json:"wrapping_nonce"`
}

type FolderFileRequest struct {
	FolderID string `json:"folder_id"`
	FileID   string `json:"file_id"`
}

type ShareFolderRequest struct {
	FolderID        string `json:"folder_id"`
	RecipientUserID string `json:"recipient_user_id"`
	SealedFolderKey string `json:"sealed_folder_key"`
}

type RevokeFolderRequest struct {
	FolderID        string `json:"folder_id"`
	RecipientUserID string `json:"recipient_user_id"`
}

type FolderFileKey struct {
	FileID                  string `json:"file_id"`
	DEKSealedUnderFolderKey string `json:"dek_sealed_under_folder_key"`
	WrappingNonce           string `json:"wrapping_nonce"`
}

type FolderFileList struct {
	Files []FolderFileKey `json:"files"`
}

type AddQuestionRequest struct {
	QuestionText string `json:"question_text"`
	Answer       string `json:"answer"`
}

type Question struct {
	ID           string `json:"id"`
	QuestionText string `json:"question_text"`
}

type QuestionList struct {
	Questions []Question `json:"questions"`
	Message   string     `json:"message,omitempty"`
}

type QuestionRequest struct {
	QuestionID string `json:"question_id"`
}

type VerifyQuestionRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type VerifyQuestionResponse struct {
	Match bool `json:"match"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type RecoveryAnswer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

type VerifyRecoveryAnswersRequest struct {
	Email   string           `json:"email"`
	Answers []RecoveryAnswer `json:"answers"`
}

type RecoveryToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type ErasureStep struct {
	Name        string `json:"name"`
	RowsDeleted int64  `json:"rows_deleted"`
}

type ErasureReport struct {
	UserID       string        `json:"user_id"`
	Resumed      bool          `json:"resumed"`
	BlobsDeleted int           `json:"blobs_deleted"`
	BlobFailures int           `json:"blob_failures"`
	Partial      bool          `json:"partial"`
	Steps        []ErasureStep `json:"steps"`
}

func fileFromModel(f *models.File) File {
	return File{
		ID:               f.ID,
		OwnerID:          f.OwnerID,
		BlobKey:          f.BlobKey,
		SizeBytes:        f.SizeBytes,
		MimeType:         f.MimeType,
		State:            f.State(),
		CreatedAt:        f.CreatedAt,
		DeletedAt:        f.DeletedAt,
		ScheduledPurgeAt: f.ScheduledPurgeAt,
	}
}

func filesFromModels(fs []models.File) *FileList {
	out := &FileList{Files: make([]File, 0, len(fs))}
	for i := range fs {
		out.Files = append(out.Files, fileFromModel(&fs[i]))
	}
	return out
}

func accessFromModel(l *models.AccessList) *AccessList {
	out := &AccessList{OwnerID: l.OwnerID, SharedWith: make([]Grantee, 0, len(l.SharedWith))}
	for _, g := range l.SharedWith {
		out.SharedWith = append(out.SharedWith, Grantee(g))
	}
	return out
}

func keyPathFromModel(p *models.KeyPath) *KeyPath {
	return &KeyPath{
		Kind:                    p.Kind,
		FileID:                  p.FileID,
		SealedDEK:               p.SealedDEK,
		FolderID:                p.FolderID,
		SealedFolderKey:         p.SealedFolderKey,
		DEKSealedUnderFolderKey: p.DEKSealedUnderFolderKey,
		WrappingNonce:           p.WrappingNonce,
	}
}

func questionsFromService(qs []services.RecoveryQuestion, msg string) *QuestionList {
	out := &QuestionList{Questions: make([]Question, 0, len(qs)), Message: msg}
	for _, q := range qs {
		out.Questions = append(out.Questions, Question(q))
	}
	return out
}

func reportFromModel(r *models.ErasureReport) *ErasureReport {
	out := &ErasureReport{
		UserID:       r.UserID,
		Resumed:      r.Resumed,
		BlobsDeleted: r.BlobsDeleted,
		BlobFailures: len(r.BlobFailures),
		Partial:      len(r.BlobFailures) > 0,
		Steps:        make([]ErasureStep, 0, len(r.Steps)),
	}
	for _, s := range r.Steps {
		out.Steps = append(out.Steps, ErasureStep(s))
	}
	return out
}
