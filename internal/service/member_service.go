package service

import (
	"context"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
)

type MemberService struct {
	base
}

func NewMemberService(store repository.Store, logger *zap.Logger) *MemberService {
	return &MemberService{base: newBase(store, logger)}
}

// List 团队目录：所有用户及其项目、任务统计，最新注册的在前
func (s *MemberService) List(ctx context.Context, p model.Principal) ([]model.MemberStats, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	members, err := s.store.Users().ListWithStats(ctx)
	if err != nil {
		s.log(ctx).Error("ListMembers: failed to fetch members", zap.Error(err))
		return nil, err
	}
	if members == nil {
		members = []model.MemberStats{}
	}
	return members, nil
}
