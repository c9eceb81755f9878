package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/access"
	"projecthub/internal/model"
	"projecthub/internal/repository"
)

const aggregateProject = "project"

type ProjectService struct {
	base
}

func NewProjectService(store repository.Store, logger *zap.Logger) *ProjectService {
	return &ProjectService{base: newBase(store, logger)}
}

// List 返回调用方拥有或参与的项目，按 updatedAt 倒序
func (s *ProjectService) List(ctx context.Context, p model.Principal) ([]model.Project, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID))

	projects, err := s.store.Projects().ListAccessible(ctx, p.UserID)
	if err == nil {
		err = expandProjects(ctx, s.store, projects)
	}
	if err != nil {
		log.Error("ListProjects: failed to fetch projects", zap.Error(err))
		return nil, err
	}
	if projects == nil {
		projects = []model.Project{}
	}

	log.Debug("ListProjects: success", zap.Int("project_count", len(projects)))
	return projects, nil
}

func (s *ProjectService) Create(ctx context.Context, p model.Principal, in model.ProjectInput) (project *model.Project, err error) {
	defer func() { recordMutation(aggregateProject, "create", err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID))

	if err := validateProjectInput(in); err != nil {
		log.Warn("CreateProject: invalid input", zap.Error(err))
		return nil, err
	}

	now := s.now()
	project = &model.Project{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Status:      model.ProjectPlanning,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Progress:    0,
		OwnerID:     p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Status != nil {
		project.Status = *in.Status
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Projects().Create(ctx, project); err != nil {
			return err
		}
		return appendEvent(ctx, tx, aggregateProject, project.ID, mqcontracts.RoutingKeyProjectCreated,
			mqcontracts.ProjectCreatedPayload{
				EventMeta: s.eventMeta(ctx),
				ProjectID: project.ID,
				Name:      project.Name,
				OwnerID:   project.OwnerID,
			})
	})
	if err != nil {
		logResult(log, "CreateProject", err)
		return nil, err
	}

	if err := s.expandOne(ctx, project); err != nil {
		return nil, err
	}
	log.Info("CreateProject: success", zap.String("project_id", project.ID))
	return project, nil
}

// Get 返回项目详情：成员、任务（createdAt 倒序）和里程碑（date 升序）
func (s *ProjectService) Get(ctx context.Context, p model.Principal, id string) (*model.ProjectDetail, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("project_id", id))

	project, err := s.store.Projects().GetByID(ctx, id)
	if err != nil {
		logResult(log, "GetProject", err)
		return nil, err
	}
	if err := access.CheckProjectAccess(p.UserID, project); err != nil {
		log.Warn("GetProject: access denied")
		return nil, err
	}

	if err := s.expandOne(ctx, project); err != nil {
		return nil, err
	}
	tasks, err := s.store.Tasks().ListByProject(ctx, id)
	if err == nil {
		err = expandTasks(ctx, s.store, tasks)
	}
	if err != nil {
		log.Error("GetProject: failed to fetch tasks", zap.Error(err))
		return nil, err
	}
	milestones, err := s.store.Milestones().ListByProject(ctx, id)
	if err != nil {
		log.Error("GetProject: failed to fetch milestones", zap.Error(err))
		return nil, err
	}

	detail := &model.ProjectDetail{
		Project:    *project,
		Tasks:      tasks,
		Milestones: milestones,
	}
	if detail.Tasks == nil {
		detail.Tasks = []model.Task{}
	}
	if detail.Milestones == nil {
		detail.Milestones = []model.Milestone{}
	}
	return detail, nil
}

// Update 只有 owner 可以修改；空 patch 不写库，原样返回
func (s *ProjectService) Update(ctx context.Context, p model.Principal, id string, patch model.ProjectPatch) (project *model.Project, err error) {
	defer func() { recordMutation(aggregateProject, "update", err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("project_id", id))

	if err := validateProjectPatch(patch); err != nil {
		log.Warn("UpdateProject: invalid patch", zap.Error(err))
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		existing, err := tx.Projects().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := access.CheckProjectMutation(p.UserID, existing); err != nil {
			return err
		}
		project = existing
		if patch.IsEmpty() {
			return nil
		}

		applyProjectPatch(project, patch)
		project.UpdatedAt = s.now()
		return tx.Projects().Update(ctx, project)
	})
	if err != nil {
		logResult(log, "UpdateProject", err)
		return nil, err
	}

	if err := s.expandOne(ctx, project); err != nil {
		return nil, err
	}
	log.Info("UpdateProject: success", zap.Bool("noop", patch.IsEmpty()))
	return project, nil
}

func applyProjectPatch(project *model.Project, patch model.ProjectPatch) {
	if patch.Name.HasValue() {
		project.Name = strings.TrimSpace(patch.Name.Value)
	}
	patch.Description.ApplyTo(&project.Description)
	if patch.Status.HasValue() {
		project.Status = patch.Status.Value
	}
	patch.StartDate.ApplyTo(&project.StartDate)
	patch.EndDate.ApplyTo(&project.EndDate)
	if patch.Progress.HasValue() {
		project.Progress = patch.Progress.Value
	}
}

// Delete 在一个事务里删除项目及其任务、里程碑和成员关系
func (s *ProjectService) Delete(ctx context.Context, p model.Principal, id string) (err error) {
	defer func() { recordMutation(aggregateProject, "delete", err) }()

	if err := requirePrincipal(p); err != nil {
		return err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("project_id", id))

	var taskCount, milestoneCount int
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		project, err := tx.Projects().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := access.CheckProjectMutation(p.UserID, project); err != nil {
			return err
		}

		if taskCount, err = tx.Tasks().DeleteByProject(ctx, id); err != nil {
			return err
		}
		if milestoneCount, err = tx.Milestones().DeleteByProject(ctx, id); err != nil {
			return err
		}
		if err := tx.Projects().DeleteMembers(ctx, id); err != nil {
			return err
		}
		if err := tx.Projects().Delete(ctx, id); err != nil {
			return err
		}

		return appendEvent(ctx, tx, aggregateProject, id, mqcontracts.RoutingKeyProjectDeleted,
			mqcontracts.ProjectDeletedPayload{
				EventMeta:      s.eventMeta(ctx),
				ProjectID:      id,
				Name:           project.Name,
				OwnerID:        project.OwnerID,
				MemberIDs:      project.MemberIDs,
				TaskCount:      taskCount,
				MilestoneCount: milestoneCount,
			})
	})
	logResult(log, "DeleteProject", err,
		zap.Int("task_count", taskCount),
		zap.Int("milestone_count", milestoneCount),
	)
	return err
}

// AddMember 仅 owner 可操作；已是成员时幂等
func (s *ProjectService) AddMember(ctx context.Context, p model.Principal, projectID, userID string) (project *model.Project, err error) {
	defer func() { recordMutation("project_member", "add", err) }()

	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("userId", "is required")
	}
	log := s.log(ctx).With(
		zap.String("user_id", p.UserID),
		zap.String("project_id", projectID),
		zap.String("member_id", userID),
	)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		existing, err := tx.Projects().GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := access.CheckProjectMutation(p.UserID, existing); err != nil {
			return err
		}
		if userID == existing.OwnerID {
			return model.NewValidationError("userId", "owner is already part of the project")
		}
		if _, err := tx.Users().GetByID(ctx, userID); err != nil {
			return err
		}

		project = existing
		added, err := tx.Projects().AddMember(ctx, projectID, userID)
		if err != nil || !added {
			return err
		}
		project.MemberIDs = append(project.MemberIDs, userID)

		return appendEvent(ctx, tx, aggregateProject, projectID, mqcontracts.RoutingKeyProjectMemberAdded,
			mqcontracts.ProjectMemberAddedPayload{
				EventMeta:   s.eventMeta(ctx),
				ProjectID:   projectID,
				ProjectName: existing.Name,
				UserID:      userID,
				AddedBy:     p.UserID,
			})
	})
	logResult(log, "AddMember", err)
	if err != nil {
		return nil, err
	}

	if err := s.expandOne(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// RemoveMember 仅 owner 可操作；不是成员时返回 NotFound
func (s *ProjectService) RemoveMember(ctx context.Context, p model.Principal, projectID, userID string) (err error) {
	defer func() { recordMutation("project_member", "remove", err) }()

	if err := requirePrincipal(p); err != nil {
		return err
	}
	log := s.log(ctx).With(
		zap.String("user_id", p.UserID),
		zap.String("project_id", projectID),
		zap.String("member_id", userID),
	)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		project, err := tx.Projects().GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := access.CheckProjectMutation(p.UserID, project); err != nil {
			return err
		}
		removed, err := tx.Projects().RemoveMember(ctx, projectID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return model.NotFound("project member", userID)
		}
		return nil
	})
	logResult(log, "RemoveMember", err)
	return err
}

func (s *ProjectService) expandOne(ctx context.Context, project *model.Project) error {
	one := []model.Project{*project}
	if err := expandProjects(ctx, s.store, one); err != nil {
		s.log(ctx).Error("failed to expand project", zap.String("project_id", project.ID), zap.Error(err))
		return err
	}
	*project = one[0]
	return nil
}

// Timeline 返回可访问且有开始日期的项目，按 startDate 升序；
// 每个项目带有日期的任务（dueDate 升序，无 dueDate 的在后）和里程碑（date 升序）
func (s *ProjectService) Timeline(ctx context.Context, p model.Principal) ([]model.TimelineProject, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID))

	rows, err := s.timeline(ctx, p.UserID)
	if err != nil {
		log.Error("ProjectTimeline: failed to fetch projects", zap.Error(err))
		return nil, err
	}
	log.Debug("ProjectTimeline: success", zap.Int("project_count", len(rows)))
	return rows, nil
}

func (s *ProjectService) timeline(ctx context.Context, userID string) ([]model.TimelineProject, error) {
	projects, err := s.store.Projects().ListAccessible(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows := []model.TimelineProject{}
	for _, pr := range projects {
		if pr.StartDate == nil {
			continue
		}
		tasks, err := s.store.Tasks().ListByProject(ctx, pr.ID)
		if err != nil {
			return nil, err
		}
		milestones, err := s.store.Milestones().ListByProject(ctx, pr.ID)
		if err != nil {
			return nil, err
		}

		dated := []model.Task{}
		for _, t := range tasks {
			if t.StartDate != nil || t.DueDate != nil {
				dated = append(dated, t)
			}
		}
		sort.SliceStable(dated, func(i, j int) bool {
			a, b := dated[i].DueDate, dated[j].DueDate
			if a == nil || b == nil {
				return a != nil
			}
			return a.Before(*b)
		})
		sort.SliceStable(milestones, func(i, j int) bool {
			return milestones[i].Date.Before(milestones[j].Date)
		})
		if milestones == nil {
			milestones = []model.Milestone{}
		}

		rows = append(rows, model.TimelineProject{Project: pr, Tasks: dated, Milestones: milestones})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StartDate.Before(*rows[j].StartDate)
	})
	return rows, nil
}
