package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/audit/masking"
	"github.com/smallbiznis/tokenledger/internal/clock"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const auditSavepoint = "audit_log"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, action, targetType, targetID string, metadata map[string]any) error {
	entry, err := s.build(ctx, action, targetType, targetID, metadata)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) AuditLogTx(ctx context.Context, tx *gorm.DB, action, targetType, targetID string, metadata map[string]any) error {
	entry, err := s.build(ctx, action, targetType, targetID, metadata)
	if err != nil {
		return err
	}

	if err := tx.SavePoint(auditSavepoint).Error; err != nil {
		s.log.Warn("failed to open audit savepoint", zap.String("action", entry.Action), zap.Error(err))
		return err
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
		if rbErr := tx.RollbackTo(auditSavepoint).Error; rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListAuditLogRequest) (domain.ListAuditLogResponse, error) {
	filter := domain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Limit:      int(pagination.NormalizeSize(int32(req.PageSize))),
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListAuditLogResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return domain.ListAuditLogResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = &id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, int32(filter.Limit), func(item *domain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	logs := make([]domain.AuditLog, 0, len(items))
	for _, item := range items {
		logs = append(logs, *item)
	}
	return domain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func (s *Service) build(ctx context.Context, action, targetType, targetID string, metadata map[string]any) (*domain.AuditLog, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, domain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = string(domain.ActorTypeSystem)
	}

	payload := masking.MaskFields(metadata, masking.SensitiveKeys)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	return &domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    nonEmpty(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   nonEmpty(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}, nil
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
