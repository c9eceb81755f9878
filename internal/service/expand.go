package service

import (
	"context"

	"projecthub/internal/model"
	"projecthub/internal/repository"
)

// expandProjects 填充 owner、members 和 taskCount
func expandProjects(ctx context.Context, store repository.Store, projects []model.Project) error {
	if len(projects) == 0 {
		return nil
	}

	var userIDs, projectIDs []string
	for _, p := range projects {
		projectIDs = append(projectIDs, p.ID)
		userIDs = append(userIDs, p.OwnerID)
		userIDs = append(userIDs, p.MemberIDs...)
	}

	users, err := store.Users().GetMany(ctx, userIDs)
	if err != nil {
		return err
	}
	counts, err := store.Tasks().CountByProjects(ctx, projectIDs)
	if err != nil {
		return err
	}

	for i := range projects {
		p := &projects[i]
		p.Owner = users[p.OwnerID].Summary()
		p.Members = make([]model.UserSummary, 0, len(p.MemberIDs))
		for _, id := range p.MemberIDs {
			if u, ok := users[id]; ok {
				p.Members = append(p.Members, *u.Summary())
			}
		}
		n := counts[p.ID]
		p.TaskCount = &n
	}
	return nil
}

// expandTasks 填充 project 引用、assignee 和 creator
func expandTasks(ctx context.Context, store repository.Store, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	var userIDs, projectIDs []string
	for _, t := range tasks {
		projectIDs = append(projectIDs, t.ProjectID)
		userIDs = append(userIDs, t.CreatorID)
		if t.AssigneeID != nil {
			userIDs = append(userIDs, *t.AssigneeID)
		}
	}

	projects, err := store.Projects().GetMany(ctx, projectIDs)
	if err != nil {
		return err
	}
	users, err := store.Users().GetMany(ctx, userIDs)
	if err != nil {
		return err
	}

	for i := range tasks {
		t := &tasks[i]
		t.Project = projects[t.ProjectID].Ref()
		t.Creator = users[t.CreatorID].Summary()
		t.Assignee = nil
		if t.AssigneeID != nil {
			t.Assignee = users[*t.AssigneeID].Summary()
		}
	}
	return nil
}
