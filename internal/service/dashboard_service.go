package service

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
)

const (
	dashboardRecentProjects = 4
	dashboardUpcomingTasks  = 5
)

type DashboardService struct {
	base
}

func NewDashboardService(store repository.Store, logger *zap.Logger) *DashboardService {
	return &DashboardService{base: newBase(store, logger)}
}

// Summary 汇总调用方拥有的项目和创建的任务
func (s *DashboardService) Summary(ctx context.Context, p model.Principal) (*model.DashboardSummary, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID))

	summary, err := s.summary(ctx, p.UserID)
	if err != nil {
		log.Error("DashboardSummary: failed to aggregate", zap.Error(err))
		return nil, err
	}
	log.Debug("DashboardSummary: success",
		zap.Int("project_count", summary.Stats.ProjectCount),
		zap.Int("task_count", summary.Stats.TaskCount),
	)
	return summary, nil
}

func (s *DashboardService) summary(ctx context.Context, userID string) (*model.DashboardSummary, error) {
	projects, err := s.store.Projects().ListAccessible(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.Tasks().ListVisible(ctx, userID, model.TaskFilter{})
	if err != nil {
		return nil, err
	}
	memberCount, err := s.store.Users().Count(ctx)
	if err != nil {
		return nil, err
	}

	out := &model.DashboardSummary{
		RecentProjects: []model.Project{},
		UpcomingTasks:  []model.Task{},
	}
	out.Stats.MemberCount = memberCount

	// ListAccessible 已按 updatedAt 倒序
	for _, pr := range projects {
		if pr.OwnerID != userID {
			continue
		}
		out.Stats.ProjectCount++
		if len(out.RecentProjects) < dashboardRecentProjects {
			out.RecentProjects = append(out.RecentProjects, pr)
		}
	}

	now := s.now()
	for _, t := range tasks {
		if t.CreatorID != userID {
			continue
		}
		out.Stats.TaskCount++
		if t.Status == model.TaskCompleted {
			out.Stats.CompletedTasks++
			continue
		}
		if t.DueDate != nil && !t.DueDate.Before(now) {
			out.UpcomingTasks = append(out.UpcomingTasks, t)
		}
	}
	if out.Stats.TaskCount > 0 {
		rate := float64(out.Stats.CompletedTasks) / float64(out.Stats.TaskCount) * 100
		out.Stats.CompletionRate = int(math.Round(rate))
	}

	sort.SliceStable(out.UpcomingTasks, func(i, j int) bool {
		return out.UpcomingTasks[i].DueDate.Before(*out.UpcomingTasks[j].DueDate)
	})
	if len(out.UpcomingTasks) > dashboardUpcomingTasks {
		out.UpcomingTasks = out.UpcomingTasks[:dashboardUpcomingTasks]
	}

	if err := expandProjects(ctx, s.store, out.RecentProjects); err != nil {
		return nil, err
	}
	if err := expandTasks(ctx, s.store, out.UpcomingTasks); err != nil {
		return nil, err
	}
	return out, nil
}
