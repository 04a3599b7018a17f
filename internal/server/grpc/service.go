package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sealvault.v1.Vault"

type vaultServer interface {
	Ping(ctx context.Context, req *Empty) (*PingResponse, error)
}

// unary adapts a typed handler to a grpc.MethodDesc. The body is decoded
// strictly so that misspelled or legacy field names are rejected.
func unary[Req, Resp any](name string, fn func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var raw rawMessage
			if err := dec(&raw); err != nil {
				return nil, err
			}
			in := new(Req)
			if err := decodeStrict(raw, in); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
			}

			s := srv.(*Server)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			})
		},
	}
}

var vaultServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*vaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", (*Server).Ping),
		unary("Register", (*Server).Register),
		unary("Login", (*Server).Login),
		unary("Refresh", (*Server).Refresh),
		unary("DeleteAccount", (*Server).DeleteAccount),

		unary("RegisterIdentity", (*Server).RegisterIdentity),
		unary("GetIdentity", (*Server).GetIdentity),

		unary("GetSettings", (*Server).GetSettings),
		unary("SetSettings", (*Server).SetSettings),

		unary("RequestUpload", (*Server).RequestUpload),
		unary("CompleteUpload", (*Server).CompleteUpload),
		unary("ListFiles", (*Server).ListFiles),
		unary("ListTrash", (*Server).ListTrash),
		unary("ResolveKey", (*Server).ResolveKey),
		unary("DownloadURL", (*Server).DownloadURL),
		unary("TrashFile", (*Server).TrashFile),
		unary("RestoreFile", (*Server).RestoreFile),
		unary("DeleteFile", (*Server).DeleteFile),

		unary("GrantAccess", (*Server).GrantAccess),
		unary("BulkGrant", (*Server).BulkGrant),
		unary("RevokeAccess", (*Server).RevokeAccess),
		unary("ListAccess", (*Server).ListAccess),

		unary("CreateFolder", (*Server).CreateFolder),
		unary("AddFileToFolder", (*Server).AddFileToFolder),
		unary("RemoveFileFromFolder", (*Server).RemoveFileFromFolder),
		unary("ShareFolder", (*Server).ShareFolder),
		unary("RevokeFolder", (*Server).RevokeFolder),
		unary("ListFolders", (*Server).ListFolders),
		unary("ListFolderFiles", (*Server).ListFolderFiles),
		unary("ListFolderAccess", (*Server).ListFolderAccess),
		unary("DeleteFolder", (*Server).DeleteFolder),

		unary("AddSecurityQuestion", (*Server).AddSecurityQuestion),
		unary("ListSecurityQuestions", (*Server).ListSecurityQuestions),
		unary("DeleteSecurityQuestion", (*Server).DeleteSecurityQuestion),
		unary("VerifySecurityQuestion", (*Server).VerifySecurityQuestion),
		unary("ListRecoveryQuestions", (*Server).ListRecoveryQuestions),
		unary("VerifyRecoveryAnswers", (*Server).VerifyRecoveryAnswers),
		unary("ResetPassword", (*Server).ResetPassword),
	},
	Streams: []grpc.StreamDesc{},
}
