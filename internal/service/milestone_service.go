package service

import (
	"context"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
)

type MilestoneService struct {
	base
}

func NewMilestoneService(store repository.Store, logger *zap.Logger) *MilestoneService {
	return &MilestoneService{base: newBase(store, logger)}
}

// List 返回可访问项目的里程碑，按日期升序，带项目引用
func (s *MilestoneService) List(ctx context.Context, p model.Principal) ([]model.Milestone, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	milestones, err := s.store.Milestones().ListAccessible(ctx, p.UserID)
	if err != nil {
		s.log(ctx).Error("ListMilestones: failed to fetch milestones",
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return nil, err
	}
	if milestones == nil {
		milestones = []model.Milestone{}
	}
	return milestones, nil
}
