package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "projecthub/contracts/mq"
	"projecthub/internal/model"
	"projecthub/internal/repository"
)

func TestProjectService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		p, err := f.projects.Create(ctx, alice, model.ProjectInput{Name: "  Apollo  ", Description: strPtr("moon")})
		require.NoError(t, err)
		assert.Equal(t, "Apollo", p.Name)
		assert.Equal(t, model.ProjectPlanning, p.Status)
		assert.Equal(t, 0, p.Progress)
		assert.Equal(t, alice.UserID, p.OwnerID)
		require.NotNil(t, p.Owner)
		assert.Equal(t, "Alice", p.Owner.Name)
		assert.Empty(t, p.Members)
		require.NotNil(t, p.TaskCount)
		assert.Equal(t, 0, *p.TaskCount)
		assert.Contains(t, f.routingKeys(), mqcontracts.RoutingKeyProjectCreated)
	})

	t.Run("explicit status", func(t *testing.T) {
		status := model.ProjectInProgress
		p, err := f.projects.Create(ctx, alice, model.ProjectInput{Name: "Gemini", Status: &status})
		require.NoError(t, err)
		assert.Equal(t, model.ProjectInProgress, p.Status)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.projects.Create(ctx, alice, model.ProjectInput{Name: "   "})
		assert.ErrorIs(t, err, model.ErrValidation)

		bad := model.ProjectStatus("ARCHIVED")
		_, err = f.projects.Create(ctx, alice, model.ProjectInput{Name: "x", Status: &bad})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, err := f.projects.Create(ctx, model.Principal{}, model.ProjectInput{Name: "x"})
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})
}

func TestProjectService_ListAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createProject(t, alice, "First", bob.UserID)
	second := f.createProject(t, alice, "Second")
	f.createProject(t, carol, "Carol's")

	f.createTask(t, alice, first.ID, "older")
	f.createTask(t, alice, first.ID, "newer")
	f.addMilestone(t, first.ID, "late", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	f.addMilestone(t, first.ID, "early", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	t.Run("list is access filtered and newest first", func(t *testing.T) {
		projects, err := f.projects.List(ctx, alice)
		require.NoError(t, err)
		require.Len(t, projects, 2)
		assert.Equal(t, second.ID, projects[0].ID)
		assert.Equal(t, first.ID, projects[1].ID)
		assert.Equal(t, 2, *projects[1].TaskCount)
		require.Len(t, projects[1].Members, 1)
		assert.Equal(t, "Bob", projects[1].Members[0].Name)

		projects, err = f.projects.List(ctx, bob)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, first.ID, projects[0].ID)
	})

	t.Run("detail ordering", func(t *testing.T) {
		detail, err := f.projects.Get(ctx, bob, first.ID)
		require.NoError(t, err)
		require.Len(t, detail.Tasks, 2)
		assert.Equal(t, "newer", detail.Tasks[0].Title)
		assert.Equal(t, "older", detail.Tasks[1].Title)
		require.Len(t, detail.Milestones, 2)
		assert.Equal(t, "early", detail.Milestones[0].Name)
	})

	t.Run("not found and forbidden are distinct", func(t *testing.T) {
		_, err := f.projects.Get(ctx, carol, first.ID)
		assert.ErrorIs(t, err, model.ErrPermissionDenied)
		_, err = f.projects.Get(ctx, carol, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("empty project detail uses empty slices", func(t *testing.T) {
		detail, err := f.projects.Get(ctx, alice, second.ID)
		require.NoError(t, err)
		assert.NotNil(t, detail.Tasks)
		assert.NotNil(t, detail.Milestones)
	})
}

func TestProjectService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "Apollo", bob.UserID)

	t.Run("owner can patch fields", func(t *testing.T) {
		start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		updated, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{
			Status:    model.Some(model.ProjectInProgress),
			Progress:  model.Some(40),
			StartDate: model.Some(start),
		})
		require.NoError(t, err)
		assert.Equal(t, model.ProjectInProgress, updated.Status)
		assert.Equal(t, 40, updated.Progress)
		assert.Equal(t, start, *updated.StartDate)
		assert.Equal(t, "Apollo", updated.Name)
		assert.True(t, updated.UpdatedAt.After(p.UpdatedAt))
	})

	t.Run("member cannot update", func(t *testing.T) {
		_, err := f.projects.Update(ctx, bob, p.ID, model.ProjectPatch{Name: model.Some("hijack")})
		assert.ErrorIs(t, err, model.ErrPermissionDenied)
	})

	t.Run("owner id is immutable", func(t *testing.T) {
		_, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{OwnerID: model.Some(carol.UserID)})
		assert.ErrorIs(t, err, model.ErrValidation)

		got, err := f.projects.Get(ctx, alice, p.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.UserID, got.OwnerID)
		_, err = f.projects.Get(ctx, carol, p.ID)
		assert.ErrorIs(t, err, model.ErrPermissionDenied)
	})

	t.Run("progress bounds", func(t *testing.T) {
		for _, v := range []int{-1, 101} {
			_, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Progress: model.Some(v)})
			assert.ErrorIs(t, err, model.ErrValidation)
		}
		for _, v := range []int{0, 100} {
			_, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Progress: model.Some(v)})
			assert.NoError(t, err)
		}
	})

	t.Run("null on required fields", func(t *testing.T) {
		_, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Name: model.Null[string]()})
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Status: model.Null[model.ProjectStatus]()})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("null clears description, absent keeps it", func(t *testing.T) {
		withDesc, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Description: model.Some("docs")})
		require.NoError(t, err)
		require.NotNil(t, withDesc.Description)

		kept, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Name: model.Some("Apollo 11")})
		require.NoError(t, err)
		require.NotNil(t, kept.Description)
		assert.Equal(t, "docs", *kept.Description)

		cleared, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{Description: model.Null[string]()})
		require.NoError(t, err)
		assert.Nil(t, cleared.Description)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		before, err := f.projects.Get(ctx, alice, p.ID)
		require.NoError(t, err)
		after, err := f.projects.Update(ctx, alice, p.ID, model.ProjectPatch{})
		require.NoError(t, err)
		assert.Equal(t, before.Project, *after)
	})
}

func TestProjectService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("missing project is not found", func(t *testing.T) {
		f := newFixture(t)
		err := f.projects.Delete(ctx, alice, "proj-404")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.NotErrorIs(t, err, model.ErrPermissionDenied)
	})

	t.Run("only the owner may delete", func(t *testing.T) {
		f := newFixture(t)
		p := f.createProject(t, alice, "Apollo", bob.UserID)
		assert.ErrorIs(t, f.projects.Delete(ctx, bob, p.ID), model.ErrPermissionDenied)
		assert.ErrorIs(t, f.projects.Delete(ctx, carol, p.ID), model.ErrPermissionDenied)
	})

	t.Run("cascades tasks and milestones", func(t *testing.T) {
		f := newFixture(t)
		p := f.createProject(t, alice, "Apollo", bob.UserID)
		other := f.createProject(t, alice, "Other")
		for _, title := range []string{"a", "b", "c"} {
			f.createTask(t, alice, p.ID, title)
		}
		keep := f.createTask(t, alice, other.ID, "keep")
		f.addMilestone(t, p.ID, "m1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
		f.addMilestone(t, p.ID, "m2", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

		require.NoError(t, f.projects.Delete(ctx, alice, p.ID))

		tasks, err := f.mem.Tasks().ListByProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
		milestones, err := f.mem.Milestones().ListByProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, milestones)
		_, err = f.projects.Get(ctx, alice, p.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = f.tasks.Get(ctx, alice, keep.ID)
		assert.NoError(t, err)
		assert.Contains(t, f.routingKeys(), mqcontracts.RoutingKeyProjectDeleted)

		assert.ErrorIs(t, f.projects.Delete(ctx, alice, p.ID), model.ErrNotFound)
	})

	t.Run("failure mid cascade leaves everything in place", func(t *testing.T) {
		f := newFixture(t)
		p := f.createProject(t, alice, "Apollo", bob.UserID)
		for _, title := range []string{"a", "b"} {
			f.createTask(t, alice, p.ID, title)
		}
		f.addMilestone(t, p.ID, "m1", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

		before, err := f.projects.Get(ctx, alice, p.ID)
		require.NoError(t, err)
		eventsBefore := len(f.mem.OutboxEvents())

		f.wire(failingMilestoneStore{Store: f.mem})
		err = f.projects.Delete(ctx, alice, p.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrStorage)

		f.wire(f.mem)
		after, err := f.projects.Get(ctx, alice, p.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Len(t, f.mem.OutboxEvents(), eventsBefore)
	})
}

func TestProjectService_Members(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createProject(t, alice, "Apollo")

	t.Run("add is owner only and idempotent", func(t *testing.T) {
		_, err := f.projects.AddMember(ctx, bob, p.ID, bob.UserID)
		assert.ErrorIs(t, err, model.ErrPermissionDenied)

		updated, err := f.projects.AddMember(ctx, alice, p.ID, bob.UserID)
		require.NoError(t, err)
		require.Len(t, updated.Members, 1)

		again, err := f.projects.AddMember(ctx, alice, p.ID, bob.UserID)
		require.NoError(t, err)
		assert.Len(t, again.Members, 1)

		added := 0
		for _, key := range f.routingKeys() {
			if key == mqcontracts.RoutingKeyProjectMemberAdded {
				added++
			}
		}
		assert.Equal(t, 1, added)
	})

	t.Run("add rejects unknown users and the owner", func(t *testing.T) {
		_, err := f.projects.AddMember(ctx, alice, p.ID, "ghost")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = f.projects.AddMember(ctx, alice, p.ID, alice.UserID)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("member gains and loses access", func(t *testing.T) {
		_, err := f.projects.Get(ctx, bob, p.ID)
		require.NoError(t, err)

		require.NoError(t, f.projects.RemoveMember(ctx, alice, p.ID, bob.UserID))
		_, err = f.projects.Get(ctx, bob, p.ID)
		assert.ErrorIs(t, err, model.ErrPermissionDenied)

		assert.ErrorIs(t, f.projects.RemoveMember(ctx, alice, p.ID, bob.UserID), model.ErrNotFound)
	})
}

// failingMilestoneStore 让级联删除在删除里程碑时失败
type failingMilestoneStore struct {
	repository.Store
}

func (s failingMilestoneStore) Milestones() repository.MilestoneRepository {
	return failingMilestones{MilestoneRepository: s.Store.Milestones()}
}

func (s failingMilestoneStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, failingMilestoneStore{Store: tx})
	})
}

type failingMilestones struct {
	repository.MilestoneRepository
}

func (failingMilestones) DeleteByProject(context.Context, string) (int, error) {
	return 0, model.NewStorageError("delete milestones", errors.New("connection reset"))
}
