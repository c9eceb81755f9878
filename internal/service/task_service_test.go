package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/model"
)

// A 拥有项目 P，B 是成员，C 与项目无关
func TestScenario_MemberMayUpdateOutsiderMayNot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createProject(t, alice, "P", bob.UserID)
	t1 := f.createTask(t, alice, p.ID, "T1")
	require.Nil(t, t1.AssigneeID)

	updated, err := f.tasks.Update(ctx, bob, t1.ID, model.TaskPatch{Status: model.Some(model.TaskInProgress)})
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, updated.Status)

	_, err = f.tasks.Update(ctx, carol, t1.ID, model.TaskPatch{Status: model.Some(model.TaskCompleted)})
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	got, err := f.tasks.Get(ctx, alice, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, got.Status)
}

func TestTaskService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "P", bob.UserID)

	t.Run("defaults and expansion", func(t *testing.T) {
		task, err := f.tasks.Create(ctx, bob, model.TaskInput{Title: " Write docs ", ProjectID: p.ID, AssigneeID: strPtr(carol.UserID)})
		require.NoError(t, err)
		assert.Equal(t, "Write docs", task.Title)
		assert.Equal(t, model.TaskTodo, task.Status)
		assert.Equal(t, model.PriorityMedium, task.Priority)
		assert.Equal(t, 0, task.Progress)
		assert.Equal(t, bob.UserID, task.CreatorID)
		require.NotNil(t, task.Project)
		assert.Equal(t, "P", task.Project.Name)
		require.NotNil(t, task.Assignee)
		assert.Equal(t, "Carol", task.Assignee.Name)
		require.NotNil(t, task.Creator)
		assert.Equal(t, "Bob", task.Creator.Name)
		assert.Contains(t, f.routingKeys(), mqcontracts.RoutingKeyTaskAssigned)
	})

	t.Run("explicit status and priority", func(t *testing.T) {
		status, priority := model.TaskInReview, model.PriorityUrgent
		task, err := f.tasks.Create(ctx, alice, model.TaskInput{Title: "x", ProjectID: p.ID, Status: &status, Priority: &priority})
		require.NoError(t, err)
		assert.Equal(t, model.TaskInReview, task.Status)
		assert.Equal(t, model.PriorityUrgent, task.Priority)
	})

	tests := []struct {
		name string
		in   model.TaskInput
		want error
	}{
		{"empty title", model.TaskInput{Title: "  ", ProjectID: p.ID}, model.ErrValidation},
		{"missing project id", model.TaskInput{Title: "x"}, model.ErrValidation},
		{"unknown project", model.TaskInput{Title: "x", ProjectID: "nope"}, model.ErrNotFound},
		{"unknown assignee", model.TaskInput{Title: "x", ProjectID: p.ID, AssigneeID: strPtr("ghost")}, model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.Create(ctx, alice, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("outsider cannot create", func(t *testing.T) {
		_, err := f.tasks.Create(ctx, carol, model.TaskInput{Title: "x", ProjectID: p.ID})
		assert.ErrorIs(t, err, model.ErrPermissionDenied)
	})
}

func TestTaskService_UpdatePartialSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "P")

	due := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	task, err := f.tasks.Create(ctx, alice, model.TaskInput{
		Title:       "T",
		ProjectID:   p.ID,
		Description: strPtr("details"),
		DueDate:     &due,
	})
	require.NoError(t, err)

	t.Run("empty patch changes nothing", func(t *testing.T) {
		eventsBefore := len(f.mem.OutboxEvents())
		before, err := f.tasks.Get(ctx, alice, task.ID)
		require.NoError(t, err)

		after, err := f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{})
		require.NoError(t, err)
		assert.Equal(t, before, after)

		reread, err := f.tasks.Get(ctx, alice, task.ID)
		require.NoError(t, err)
		assert.Equal(t, before, reread)
		assert.Len(t, f.mem.OutboxEvents(), eventsBefore)
	})

	t.Run("absent leaves description", func(t *testing.T) {
		updated, err := f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{Title: model.Some("T2")})
		require.NoError(t, err)
		require.NotNil(t, updated.Description)
		assert.Equal(t, "details", *updated.Description)
		require.NotNil(t, updated.DueDate)
	})

	t.Run("null clears description only", func(t *testing.T) {
		updated, err := f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{Description: model.Null[string]()})
		require.NoError(t, err)
		assert.Nil(t, updated.Description)
		assert.Equal(t, "T2", updated.Title)
		require.NotNil(t, updated.DueDate)
		assert.Equal(t, due, *updated.DueDate)
	})

	t.Run("assignee can be set and cleared", func(t *testing.T) {
		updated, err := f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{AssigneeID: model.Some(bob.UserID)})
		require.NoError(t, err)
		require.NotNil(t, updated.Assignee)
		assert.Equal(t, "Bob", updated.Assignee.Name)

		updated, err = f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{AssigneeID: model.Null[string]()})
		require.NoError(t, err)
		assert.Nil(t, updated.AssigneeID)
		assert.Nil(t, updated.Assignee)
	})

	t.Run("any status transition is allowed", func(t *testing.T) {
		for _, status := range []model.TaskStatus{model.TaskCompleted, model.TaskTodo, model.TaskInReview, model.TaskInProgress} {
			updated, err := f.tasks.Update(ctx, alice, task.ID, model.TaskPatch{Status: model.Some(status)})
			require.NoError(t, err)
			assert.Equal(t, status, updated.Status)
		}
		assert.Contains(t, f.routingKeys(), mqcontracts.RoutingKeyTaskStatusChanged)
	})

	invalid := []struct {
		name  string
		patch model.TaskPatch
	}{
		{"progress above range", model.TaskPatch{Progress: model.Some(101)}},
		{"progress below range", model.TaskPatch{Progress: model.Some(-5)}},
		{"null progress", model.TaskPatch{Progress: model.Null[int]()}},
		{"null title", model.TaskPatch{Title: model.Null[string]()}},
		{"empty title", model.TaskPatch{Title: model.Some("")}},
		{"null status", model.TaskPatch{Status: model.Null[model.TaskStatus]()}},
		{"unknown status", model.TaskPatch{Status: model.Some(model.TaskStatus("DONE"))}},
		{"null priority", model.TaskPatch{Priority: model.Null[model.Priority]()}},
		{"project id is immutable", model.TaskPatch{ProjectID: model.Some("other")}},
		{"creator id is immutable", model.TaskPatch{CreatorID: model.Some(bob.UserID)}},
		{"unknown assignee", model.TaskPatch{AssigneeID: model.Some("ghost")}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.tasks.Get(ctx, alice, task.ID)
			require.NoError(t, err)

			_, err = f.tasks.Update(ctx, alice, task.ID, tt.patch)
			assert.ErrorIs(t, err, model.ErrValidation)

			after, err := f.tasks.Get(ctx, alice, task.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	t.Run("missing task", func(t *testing.T) {
		_, err := f.tasks.Update(ctx, alice, "missing", model.TaskPatch{Title: model.Some("x")})
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestTaskService_AccessViaAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "P")

	assigned, err := f.tasks.Create(ctx, alice, model.TaskInput{Title: "for carol", ProjectID: p.ID, AssigneeID: strPtr(carol.UserID)})
	require.NoError(t, err)
	hidden := f.createTask(t, alice, p.ID, "hidden")

	tasks, err := f.tasks.List(ctx, carol, model.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, assigned.ID, tasks[0].ID)

	tasks, err = f.tasks.List(ctx, carol, model.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1, "project filter still hides inaccessible tasks")

	_, err = f.tasks.Update(ctx, carol, assigned.ID, model.TaskPatch{Progress: model.Some(50)})
	assert.NoError(t, err)
	_, err = f.tasks.Get(ctx, carol, hidden.ID)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	tasks, err = f.tasks.List(ctx, alice, model.TaskFilter{ProjectID: p.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, hidden.ID, tasks[0].ID, "newest first")
	assert.NotNil(t, tasks[0].Project)
	assert.NotNil(t, tasks[0].Creator)

	tasks, err = f.tasks.List(ctx, bob, model.TaskFilter{})
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestTaskService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "P", bob.UserID)
	task := f.createTask(t, alice, p.ID, "T")

	assert.ErrorIs(t, f.tasks.Delete(ctx, carol, task.ID), model.ErrPermissionDenied)
	require.NoError(t, f.tasks.Delete(ctx, bob, task.ID))
	assert.ErrorIs(t, f.tasks.Delete(ctx, bob, task.ID), model.ErrNotFound)
	_, err := f.tasks.Get(ctx, alice, task.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTaskService_Unauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.List(ctx, model.Principal{}, model.TaskFilter{})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = f.tasks.Update(ctx, model.Principal{}, "t", model.TaskPatch{})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.ErrorIs(t, f.tasks.Delete(ctx, model.Principal{}, "t"), model.ErrUnauthorized)
}
