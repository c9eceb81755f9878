package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/model"
)

func TestDashboardService_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var owned []*model.Project
	for i := 1; i <= 5; i++ {
		owned = append(owned, f.createProject(t, alice, fmt.Sprintf("P%d", i), bob.UserID))
	}
	shared := f.createProject(t, carol, "Shared", alice.UserID)

	start := f.clock.t
	due := func(d time.Duration) *time.Time {
		v := start.Add(d)
		return &v
	}
	completed := model.TaskCompleted
	create := func(p model.Principal, in model.TaskInput) {
		t.Helper()
		_, err := f.tasks.Create(ctx, p, in)
		require.NoError(t, err)
	}

	create(alice, model.TaskInput{Title: "done", ProjectID: owned[4].ID, DueDate: due(time.Hour), Status: &completed})
	for _, d := range []int{6, 2, 5, 1, 4, 3} {
		create(alice, model.TaskInput{Title: fmt.Sprintf("in %d days", d), ProjectID: owned[4].ID, DueDate: due(time.Duration(d) * 24 * time.Hour)})
	}
	create(alice, model.TaskInput{Title: "overdue", ProjectID: owned[4].ID, DueDate: due(-24 * time.Hour)})
	create(alice, model.TaskInput{Title: "undated", ProjectID: shared.ID})
	create(bob, model.TaskInput{Title: "bob's", ProjectID: owned[4].ID, DueDate: due(time.Hour)})

	summary, err := f.dashboard.Summary(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, model.DashboardStats{
		ProjectCount:   5,
		TaskCount:      9,
		MemberCount:    3,
		CompletedTasks: 1,
		CompletionRate: 11,
	}, summary.Stats)

	require.Len(t, summary.RecentProjects, 4)
	var names []string
	for _, p := range summary.RecentProjects {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"P5", "P4", "P3", "P2"}, names)
	require.NotNil(t, summary.RecentProjects[0].TaskCount)
	assert.Equal(t, 9, *summary.RecentProjects[0].TaskCount)

	var upcoming []string
	for _, task := range summary.UpcomingTasks {
		upcoming = append(upcoming, task.Title)
		require.NotNil(t, task.Project)
	}
	assert.Equal(t, []string{"in 1 days", "in 2 days", "in 3 days", "in 4 days", "in 5 days"}, upcoming)

	t.Run("empty dashboard", func(t *testing.T) {
		summary, err := f.dashboard.Summary(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Stats.TaskCount)
		assert.Zero(t, summary.Stats.ProjectCount)
		assert.Empty(t, summary.RecentProjects)
		assert.NotNil(t, summary.RecentProjects)
		assert.Len(t, summary.UpcomingTasks, 1)
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, err := f.dashboard.Summary(ctx, model.Principal{})
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})
}

func TestProjectService_Timeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := func(m time.Month, d int) *time.Time {
		v := time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
		return &v
	}
	createProject := func(owner model.Principal, name string, start *time.Time, members ...string) *model.Project {
		t.Helper()
		p, err := f.projects.Create(ctx, owner, model.ProjectInput{Name: name, StartDate: start})
		require.NoError(t, err)
		for _, m := range members {
			_, err = f.projects.AddMember(ctx, owner, p.ID, m)
			require.NoError(t, err)
		}
		return p
	}

	later := createProject(alice, "Later", date(time.March, 1))
	earlier := createProject(alice, "Earlier", date(time.February, 1), bob.UserID)
	createProject(alice, "Undated", nil)
	createProject(carol, "Hidden", date(time.January, 1))

	for _, in := range []model.TaskInput{
		{Title: "no dates"},
		{Title: "due late", DueDate: date(time.February, 20)},
		{Title: "start only", StartDate: date(time.February, 5)},
		{Title: "due early", DueDate: date(time.February, 10)},
	} {
		in.ProjectID = earlier.ID
		_, err := f.tasks.Create(ctx, alice, in)
		require.NoError(t, err)
	}
	f.addMilestone(t, earlier.ID, "m2", *date(time.February, 28))
	f.addMilestone(t, earlier.ID, "m1", *date(time.February, 15))

	rows, err := f.projects.Timeline(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, earlier.ID, rows[0].ID)
	assert.Equal(t, later.ID, rows[1].ID)

	var titles []string
	for _, task := range rows[0].Tasks {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"due early", "due late", "start only"}, titles)
	require.Len(t, rows[0].Milestones, 2)
	assert.Equal(t, "m1", rows[0].Milestones[0].Name)
	assert.NotNil(t, rows[1].Tasks)
	assert.NotNil(t, rows[1].Milestones)

	rows, err = f.projects.Timeline(ctx, bob)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Earlier", rows[0].Name)

	_, err = f.projects.Timeline(ctx, model.Principal{})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}
