// Package access decides whether a principal may read or change a project or task.
//
// Visibility is owner-or-member for projects; tasks are additionally visible to
// their creator and assignee even when those users are not project members.
// Only the project owner may change or delete a project.
package access

import (
	"fmt"

	"projecthub/internal/model"
)

// CanAccessProject owner 或成员可读写项目内容
func CanAccessProject(userID string, project *model.Project) bool {
	if project == nil || userID == "" {
		return false
	}
	return project.OwnerID == userID || project.HasMember(userID)
}

// CanMutateProject 只有 owner 可以修改或删除项目本身
func CanMutateProject(userID string, project *model.Project) bool {
	if project == nil || userID == "" {
		return false
	}
	return project.OwnerID == userID
}

// CanAccessTask creator、assignee 或可访问所属项目的用户
func CanAccessTask(userID string, task *model.Task, project *model.Project) bool {
	if task == nil || userID == "" {
		return false
	}
	if task.CreatorID == userID || task.IsAssignee(userID) {
		return true
	}
	return CanAccessProject(userID, project)
}

// CheckProjectAccess 返回 ErrPermissionDenied 而不是 bool
func CheckProjectAccess(userID string, project *model.Project) error {
	if !CanAccessProject(userID, project) {
		return fmt.Errorf("project %q: %w", project.ID, model.ErrPermissionDenied)
	}
	return nil
}

func CheckProjectMutation(userID string, project *model.Project) error {
	if !CanMutateProject(userID, project) {
		return fmt.Errorf("project %q is owned by another user: %w", project.ID, model.ErrPermissionDenied)
	}
	return nil
}

func CheckTaskAccess(userID string, task *model.Task, project *model.Project) error {
	if !CanAccessTask(userID, task, project) {
		return fmt.Errorf("task %q: %w", task.ID, model.ErrPermissionDenied)
	}
	return nil
}
