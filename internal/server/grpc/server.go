// Package grpc exposes the vault over gRPC. Methods are registered through a
// hand-written service descriptor and exchange JSON bodies (content subtype
// "json"); the standard health service is served alongside.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type UserService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	CheckPassword(ctx context.Context, userID, password string) (bool, error)
}

type IdentityService interface {
	Register(ctx context.Context, caller auth.Caller, keys envelope.PublicKeys) (*models.Identity, error)
	Get(ctx context.Context, userID string) (*models.Identity, error)
}

type SettingsService interface {
	Get(ctx context.Context, caller auth.Caller) (*models.UserSettings, error)
	SetRetentionDays(ctx context.Context, caller auth.Caller, days int) (*models.UserSettings, error)
}

type FileService interface {
	RequestUpload(ctx context.Context, caller auth.Caller) (*models.UploadTicket, error)
	CompleteUpload(ctx context.Context, caller auth.Caller, blobKey string, sizeBytes int64, mimeType, sealedDEK string) (*models.File, error)
	ListFiles(ctx context.Context, caller auth.Caller) ([]models.File, error)
	ListTrash(ctx context.Context, caller auth.Caller) ([]models.File, error)
	ResolveKey(ctx context.Context, caller auth.Caller, fileID string) (*models.KeyPath, error)
	DownloadURL(ctx context.Context, caller auth.Caller, fileID string) (string, error)
	Trash(ctx context.Context, caller auth.Caller, fileID string) (*models.File, error)
	Restore(ctx context.Context, caller auth.Caller, fileID string) (*models.File, error)
	PermanentDelete(ctx context.Context, caller auth.Caller, fileID string) error
}

type SharingService interface {
	GrantAccess(ctx context.Context, caller auth.Caller, fileID, recipientUserID, sealedDEK string) (*models.FileKeyGrant, error)
	RevokeAccess(ctx context.Context, caller auth.Caller, fileID, recipientUserID string) error
	ListAccess(ctx context.Context, caller auth.Caller, fileID string) (*models.AccessList, error)
	BulkGrant(ctx context.Context, caller auth.Caller, fileID string, reqs []services.GrantRequest) *services.BulkGrantResult
}

type FolderService interface {
	CreateFolder(ctx context.Context, caller auth.Caller, name, sealedFolderKey string) (*models.Folder, error)
	AddFile(ctx context.Context, caller auth.Caller, folderID, fileID, wrappedDEK, nonce string) error
	RemoveFile(ctx context.Context, caller auth.Caller, folderID, fileID string) error
	ShareFolder(ctx context.Context, caller auth.Caller, folderID, recipientUserID, sealedFolderKey string) (*models.FolderKeyGrant, error)
	RevokeFolder(ctx context.Context, caller auth.Caller, folderID, recipientUserID string) error
	ListFolderFiles(ctx context.Context, caller auth.Caller, folderID string) ([]models.FolderFileKey, error)
	ListFolderAccess(ctx context.Context, caller auth.Caller, folderID string) (*models.AccessList, error)
	ListFolders(ctx context.Context, caller auth.Caller) ([]models.FolderEntry, error)
	DeleteFolder(ctx context.Context, caller auth.Caller, folderID string) error
}

type RecoveryService interface {
	AddQuestion(ctx context.Context, caller auth.Caller, questionText, answer string) (*services.RecoveryQuestion, error)
	ListQuestions(ctx context.Context, caller auth.Caller) ([]services.RecoveryQuestion, error)
	DeleteQuestion(ctx context.Context, caller auth.Caller, questionID string) error
	VerifyQuestion(ctx context.Context, caller auth.Caller, questionID, candidate string) (bool, error)
	ListQuestionsForRecovery(ctx context.Context, email string) ([]services.RecoveryQuestion, string, error)
	VerifyAllAndIssueToken(ctx context.Context, email string, answers map[string]string) (*services.IssuedToken, error)
	ResetPassword(ctx context.Context, email, tokenValue, newPassword string) error
}

type ErasureService interface {
	EraseUser(ctx context.Context, userID string) (*models.ErasureReport, error)
}

// Services bundles the application services the server dispatches to.
type Services struct {
	Users    UserService
	Identity IdentityService
	Settings SettingsService
	Files    FileService
	Sharing  SharingService
	Folders  FolderService
	Recovery RecoveryService
	Erasure  ErasureService
}

type Server struct {
	address   string
	svc       Services
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

func NewServer(address string, l logging.Logger, svc Services, secretKey string) *Server {
	return &Server{
		address:   address,
		svc:       svc,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

// newGRPCServer builds the grpc.Server with interceptors, the vault service
// and the health service registered.
func (s *Server) newGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	srv.RegisterService(&vaultServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
