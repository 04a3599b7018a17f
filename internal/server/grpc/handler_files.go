package grpc

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/services"
	"google.golang.org/grpc/status"
)

func (s *Server) RequestUpload(ctx context.Context, req *Empty) (*UploadTicket, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.svc.Files.RequestUpload(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UploadTicket{BlobKey: t.BlobKey, URL: t.URL}, nil
}

func (s *Server) CompleteUpload(ctx context.Context, req *CompleteUploadRequest) (*File, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.svc.Files.CompleteUpload(ctx, caller, req.BlobKey, req.SizeBytes, req.MimeType, req.SealedDEKForSelf)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := fileFromModel(f)
	return &out, nil
}

func (s *Server) ListFiles(ctx context.Context, req *Empty) (*FileList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	fs, err := s.svc.Files.ListFiles(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return filesFromModels(fs), nil
}

func (s *Server) ListTrash(ctx context.Context, req *Empty) (*FileList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	fs, err := s.svc.Files.ListTrash(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return filesFromModels(fs), nil
}

func (s *Server) ResolveKey(ctx context.Context, req *FileRequest) (*KeyPath, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.svc.Files.ResolveKey(ctx, caller, req.FileID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return keyPathFromModel(p), nil
}

func (s *Server) DownloadURL(ctx context.Context, req *FileRequest) (*URLResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.svc.Files.DownloadURL(ctx, caller, req.FileID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &URLResponse{URL: url}, nil
}

func (s *Server) TrashFile(ctx context.Context, req *FileRequest) (*File, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.svc.Files.Trash(ctx, caller, req.FileID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := fileFromModel(f)
	return &out, nil
}

func (s *Server) RestoreFile(ctx context.Context, req *FileRequest) (*File, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.svc.Files.Restore(ctx, caller, req.FileID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := fileFromModel(f)
	return &out, nil
}

func (s *Server) DeleteFile(ctx context.Context, req *FileRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Files.PermanentDelete(ctx, caller, req.FileID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) GrantAccess(ctx context.Context, req *GrantRequest) (*Grant, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.svc.Sharing.GrantAccess(ctx, caller, req.FileID, req.RecipientUserID, req.SealedDEK)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Grant{FileID: g.FileID, RecipientUserID: g.RecipientUserID, SharedByUserID: g.SharedByUserID, SharedAt: g.SharedAt}, nil
}

func (s *Server) BulkGrant(ctx context.Context, req *BulkGrantRequest) (*BulkGrantResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	reqs := make([]services.GrantRequest, 0, len(req.Grants))
	for _, g := range req.Grants {
		reqs = append(reqs, services.GrantRequest(g))
	}
	res := s.svc.Sharing.BulkGrant(ctx, caller, req.FileID, reqs)

	out := &BulkGrantResponse{Granted: res.Granted, Failures: make([]BulkGrantFailure, 0, len(res.Failures))}
	for _, f := range res.Failures {
		st := status.Convert(s.toStatus(ctx, f.Err))
		out.Failures = append(out.Failures, BulkGrantFailure{
			RecipientUserID: f.RecipientUserID,
			Code:            st.Code().String(),
			Message:         st.Message(),
		})
	}
	return out, nil
}

func (s *Server) RevokeAccess(ctx context.Context, req *RevokeRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Sharing.RevokeAccess(ctx, caller, req.FileID, req.RecipientUserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) ListAccess(ctx context.Context, req *FileRequest) (*AccessList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.svc.Sharing.ListAccess(ctx, caller, req.FileID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return accessFromModel(l), nil
}

func (s *Server) CreateFolder(ctx context.Context, req *CreateFolderRequest) (*Folder, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.svc.Folders.CreateFolder(ctx, caller, req.Name, req.SealedFolderKeyForOwner)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Folder{ID: f.ID, OwnerID: f.OwnerID, Name: f.Name, SealedFolderKey: f.SealedFolderKeyForOwner, CreatedAt: f.CreatedAt}, nil
}

func (s *Server) AddFileToFolder(ctx context.Context, req *AddFileToFolderRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Folders.AddFile(ctx, caller, req.FolderID, req.FileID, req.DEKSealedUnderFolderKey, req.WrappingNonce); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) RemoveFileFromFolder(ctx context.Context, req *FolderFileRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Folders.RemoveFile(ctx, caller, req.FolderID, req.FileID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) ShareFolder(ctx context.Context, req *ShareFolderRequest) (*Grant, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	g, err := s.svc.Folders.ShareFolder(ctx, caller, req.FolderID, req.RecipientUserID, req.SealedFolderKey)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Grant{FolderID: g.FolderID, RecipientUserID: g.RecipientUserID, SharedByUserID: g.SharedByUserID, SharedAt: g.SharedAt}, nil
}

func (s *Server) RevokeFolder(ctx context.Context, req *RevokeFolderRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Folders.RevokeFolder(ctx, caller, req.FolderID, req.RecipientUserID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) ListFolders(ctx context.Context, req *Empty) (*FolderList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.svc.Folders.ListFolders(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &FolderList{Folders: make([]Folder, 0, len(entries))}
	for _, e := range entries {
		out.Folders = append(out.Folders, Folder{
			ID:              e.Folder.ID,
			OwnerID:         e.Folder.OwnerID,
			Name:            e.Folder.Name,
			SealedFolderKey: e.SealedFolderKey,
			CreatedAt:       e.Folder.CreatedAt,
		})
	}
	return out, nil
}

func (s *Server) ListFolderFiles(ctx context.Context, req *FolderRequest) (*FolderFileList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.svc.Folders.ListFolderFiles(ctx, caller, req.FolderID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := &FolderFileList{Files: make([]FolderFileKey, 0, len(items))}
	for _, k := range items {
		out.Files = append(out.Files, FolderFileKey{
			FileID:                  k.FileID,
			DEKSealedUnderFolderKey: k.DEKSealedUnderFolderKey,
			WrappingNonce:           k.WrappingNonce,
		})
	}
	return out, nil
}

func (s *Server) ListFolderAccess(ctx context.Context, req *FolderRequest) (*AccessList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.svc.Folders.ListFolderAccess(ctx, caller, req.FolderID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return accessFromModel(l), nil
}

func (s *Server) DeleteFolder(ctx context.Context, req *FolderRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Folders.DeleteFolder(ctx, caller, req.FolderID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}
