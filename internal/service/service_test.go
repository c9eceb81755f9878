package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/internal/repository/memory"
)

var (
	alice = model.Principal{UserID: "user-a", Role: model.RoleMember}
	bob   = model.Principal{UserID: "user-b", Role: model.RoleMember}
	carol = model.Principal{UserID: "user-c", Role: model.RoleMember}
)

// stepClock 每次调用前进一秒，保证排序稳定
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	mem   *memory.Store
	clock *stepClock

	projects      *ProjectService
	tasks         *TaskService
	search        *SearchService
	milestones    *MilestoneService
	members       *MemberService
	dashboard     *DashboardService
	notifications *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.NewStore()
	f := &fixture{mem: mem, clock: &stepClock{t: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}}
	f.wire(mem)

	for _, u := range []model.User{
		{ID: alice.UserID, Name: "Alice", Email: "alice@example.com", Role: model.RoleAdmin},
		{ID: bob.UserID, Name: "Bob", Email: "bob@example.com", Role: model.RoleMember},
		{ID: carol.UserID, Name: "Carol", Email: "carol@example.com", Role: model.RoleMember},
	} {
		u.CreatedAt = f.clock.Now()
		u.UpdatedAt = u.CreatedAt
		require.NoError(t, mem.Users().Create(context.Background(), &u))
	}
	return f
}

// wire 用给定的 store 重建所有 service，便于注入故障
func (f *fixture) wire(store repository.Store) {
	log := zap.NewNop()
	f.projects = NewProjectService(store, log)
	f.tasks = NewTaskService(store, log)
	f.search = NewSearchService(store, log)
	f.milestones = NewMilestoneService(store, log)
	f.members = NewMemberService(store, log)
	f.dashboard = NewDashboardService(store, log)
	f.notifications = NewNotificationService(store, log)
	for _, b := range []*base{
		&f.projects.base, &f.tasks.base, &f.search.base,
		&f.milestones.base, &f.members.base, &f.dashboard.base, &f.notifications.base,
	} {
		b.now = f.clock.Now
	}
}

func (f *fixture) createProject(t *testing.T, owner model.Principal, name string, members ...string) *model.Project {
	t.Helper()
	ctx := context.Background()
	p, err := f.projects.Create(ctx, owner, model.ProjectInput{Name: name})
	require.NoError(t, err)
	for _, m := range members {
		p, err = f.projects.AddMember(ctx, owner, p.ID, m)
		require.NoError(t, err)
	}
	return p
}

func (f *fixture) createTask(t *testing.T, p model.Principal, projectID, title string) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), p, model.TaskInput{Title: title, ProjectID: projectID})
	require.NoError(t, err)
	return task
}

func (f *fixture) addMilestone(t *testing.T, projectID, name string, date time.Time) {
	t.Helper()
	require.NoError(t, f.mem.Milestones().Create(context.Background(), &model.Milestone{
		ID:        projectID + "-" + name,
		Name:      name,
		Date:      date,
		ProjectID: projectID,
		CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) routingKeys() []string {
	var keys []string
	for _, e := range f.mem.OutboxEvents() {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

func strPtr(s string) *string { return &s }
