// Package drive exposes tenant-scoped Drive operations. Every remote call is
// made with the tenant's current token and routed through the governor.
package drive

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-integration-hub/governor"
	apperrors "github.com/jrsteele09/go-integration-hub/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// RootFolder is the alias Drive uses for the top of a user's drive.
const RootFolder = "root"

// SessionSource is the part of the session registry the service needs.
type SessionSource interface {
	HasSession(tenantID string) bool
	ValidToken(ctx context.Context, tenantID string) (*oauth2.Token, error)
}

// Service runs Drive operations on behalf of tenants.
type Service struct {
	sessions SessionSource
	gov      *governor.Governor
	client   Client
	logger   zerolog.Logger
}

type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(sessions SessionSource, gov *governor.Governor, client Client, options ...ServiceOption) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("[drive NewService] session source is required")
	}
	if gov == nil {
		return nil, errors.New("[drive NewService] governor is required")
	}
	if client == nil {
		return nil, errors.New("[drive NewService] client is required")
	}

	s := &Service{
		sessions: sessions,
		gov:      gov,
		client:   client,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// ListFiles lists the files directly inside folderID. An empty folderID means
// the root folder.
func (s *Service) ListFiles(ctx context.Context, tenantID, folderID string) ([]File, error) {
	if folderID == "" {
		folderID = RootFolder
	}
	tok, err := s.token(ctx, tenantID, "ListFiles")
	if err != nil {
		return nil, err
	}

	key := tenantID + ".listFiles:" + folderID
	files, err := governor.Do(ctx, s.gov, key, func(ctx context.Context) ([]File, error) {
		return s.client.ListFiles(ctx, tok, folderID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", tenantID).Str("key", key).Msg("list files failed")
		return nil, fmt.Errorf("[drive ListFiles] %s: %w", tenantID, err)
	}
	return files, nil
}

// CreateFolder creates a folder called name inside parentID. An empty parentID
// means the root folder.
func (s *Service) CreateFolder(ctx context.Context, tenantID, name, parentID string) (*File, error) {
	if name == "" {
		return nil, fmt.Errorf("[drive CreateFolder] %s: folder name is required", tenantID)
	}
	if parentID == "" {
		parentID = RootFolder
	}
	tok, err := s.token(ctx, tenantID, "CreateFolder")
	if err != nil {
		return nil, err
	}

	key := tenantID + ".createFolder:" + parentID + "/" + name
	folder, err := governor.Do(ctx, s.gov, key, func(ctx context.Context) (*File, error) {
		return s.client.CreateFolder(ctx, tok, name, parentID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", tenantID).Str("key", key).Msg("create folder failed")
		return nil, fmt.Errorf("[drive CreateFolder] %s: %w", tenantID, err)
	}
	return folder, nil
}

// token fails fast for tenants without a live connection. Any refresh happens
// here, before the governed call, so it never waits on admission held by the
// operation itself.
func (s *Service) token(ctx context.Context, tenantID, op string) (*oauth2.Token, error) {
	if !s.sessions.HasSession(tenantID) {
		return nil, fmt.Errorf("[drive %s] %s: no active connection: %w", op, tenantID, apperrors.ErrNoSession)
	}
	tok, err := s.sessions.ValidToken(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("[drive %s] %s: %w", op, tenantID, err)
	}
	return tok, nil
}
