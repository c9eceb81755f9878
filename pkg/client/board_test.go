package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/model"
)

type updateResult struct {
	task *model.Task
	err  error
}

type updateCall struct {
	id      string
	patch   model.TaskPatch
	release chan updateResult
}

type fakeTaskAPI struct {
	mu    sync.Mutex
	tasks []model.Task
	calls chan *updateCall
}

func newFakeTaskAPI(tasks ...model.Task) *fakeTaskAPI {
	return &fakeTaskAPI{tasks: tasks, calls: make(chan *updateCall, 16)}
}

func (f *fakeTaskAPI) ListTasks(context.Context, string) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.tasks...), nil
}

func (f *fakeTaskAPI) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	c := &updateCall{id: id, patch: patch, release: make(chan updateResult, 1)}
	f.calls <- c
	select {
	case r := <-c.release:
		return r.task, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTaskAPI) next(t *testing.T) *updateCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected an update request")
		return nil
	}
}

func (f *fakeTaskAPI) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected update request for %s", c.id)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitDone(t *testing.T, m *Mutation) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not finish")
	}
}

var errServer = errors.New("server unavailable")

func day(d int) *time.Time {
	v := time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
	return &v
}

func loadedBoard(t *testing.T, tasks ...model.Task) (*Board, *fakeTaskAPI) {
	t.Helper()
	api := newFakeTaskAPI(tasks...)
	b := NewBoard(api)
	t.Cleanup(b.Close)
	require.NoError(t, b.Load(context.Background()))
	return b, api
}

func TestBoard_MoveIsAppliedBeforeConfirmation(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo})

	m, err := b.Move("t1", model.TaskInProgress)
	require.NoError(t, err)

	task, _ := b.Task("t1")
	assert.Equal(t, model.TaskInProgress, task.Status)
	assert.Equal(t, MutationPending, m.State())
	assert.Len(t, b.Column(model.TaskInProgress), 1)
	assert.Empty(t, b.Column(model.TaskTodo))

	call := api.next(t)
	assert.Equal(t, "t1", call.id)
	assert.Equal(t, model.Some(model.TaskInProgress), call.patch.Status)
	assert.False(t, call.patch.DueDate.Set, "a move only sends the status")

	call.release <- updateResult{task: &model.Task{ID: "t1", Status: model.TaskInProgress}}
	waitDone(t, m)
	assert.Equal(t, MutationConfirmed, m.State())
	assert.NoError(t, m.Err())

	task, _ = b.Task("t1")
	assert.Equal(t, model.TaskInProgress, task.Status)
}

func TestBoard_FailureRevertsOnlyMutatedFields(t *testing.T) {
	b, api := loadedBoard(t,
		model.Task{ID: "t1", Title: "Write docs", Status: model.TaskTodo, DueDate: day(10)},
		model.Task{ID: "t2", Status: model.TaskTodo},
	)

	move, err := b.Move("t1", model.TaskCompleted)
	require.NoError(t, err)
	other, err := b.Move("t2", model.TaskInReview)
	require.NoError(t, err)

	calls := map[string]*updateCall{}
	for i := 0; i < 2; i++ {
		c := api.next(t)
		calls[c.id] = c
	}

	calls["t1"].release <- updateResult{err: errServer}
	waitDone(t, move)
	assert.Equal(t, MutationRolledBack, move.State())
	assert.ErrorIs(t, move.Err(), errServer)

	t1, _ := b.Task("t1")
	assert.Equal(t, model.TaskTodo, t1.Status, "TODO stays TODO after a failed move")
	assert.Equal(t, day(10), t1.DueDate)
	assert.Equal(t, "Write docs", t1.Title)

	t2, _ := b.Task("t2")
	assert.Equal(t, model.TaskInReview, t2.Status, "other tasks are untouched")

	calls["t2"].release <- updateResult{task: &model.Task{ID: "t2", Status: model.TaskInReview}}
	waitDone(t, other)
}

func TestBoard_RescheduleRollbackKeepsStatus(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo, StartDate: day(1), DueDate: day(5)})

	move, err := b.Move("t1", model.TaskInProgress)
	require.NoError(t, err)
	resched, err := b.Reschedule("t1", day(2), nil)
	require.NoError(t, err)

	task, _ := b.Task("t1")
	assert.Equal(t, day(2), task.StartDate)
	assert.Nil(t, task.DueDate)

	first := api.next(t)
	assert.True(t, first.patch.Status.Set)
	api.assertIdle(t)
	first.release <- updateResult{task: &model.Task{ID: "t1", Status: model.TaskInProgress, StartDate: day(1), DueDate: day(5)}}
	waitDone(t, move)

	second := api.next(t)
	assert.Equal(t, model.Some(*day(2)), second.patch.StartDate)
	assert.Equal(t, model.Null[time.Time](), second.patch.DueDate)
	second.release <- updateResult{err: errServer}
	waitDone(t, resched)

	task, _ = b.Task("t1")
	assert.Equal(t, model.TaskInProgress, task.Status)
	assert.Equal(t, day(1), task.StartDate)
	assert.Equal(t, day(5), task.DueDate)
}

func TestBoard_RacingMoves(t *testing.T) {
	t.Run("stale failure does not clobber the newer move", func(t *testing.T) {
		b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo})

		m1, _ := b.Move("t1", model.TaskInProgress)
		m2, _ := b.Move("t1", model.TaskCompleted)

		c1 := api.next(t)
		api.assertIdle(t)
		c1.release <- updateResult{err: errServer}
		waitDone(t, m1)

		task, _ := b.Task("t1")
		assert.Equal(t, model.TaskCompleted, task.Status)

		c2 := api.next(t)
		assert.Equal(t, model.Some(model.TaskCompleted), c2.patch.Status)
		c2.release <- updateResult{err: errServer}
		waitDone(t, m2)

		task, _ = b.Task("t1")
		assert.Equal(t, model.TaskTodo, task.Status, "falls back to the last confirmed value")
	})

	t.Run("newest failure restores the last confirmed move", func(t *testing.T) {
		b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo})

		m1, _ := b.Move("t1", model.TaskInProgress)
		m2, _ := b.Move("t1", model.TaskCompleted)

		api.next(t).release <- updateResult{task: &model.Task{ID: "t1", Status: model.TaskInProgress}}
		waitDone(t, m1)
		task, _ := b.Task("t1")
		assert.Equal(t, model.TaskCompleted, task.Status, "no reconciliation on success")

		api.next(t).release <- updateResult{err: errServer}
		waitDone(t, m2)
		task, _ = b.Task("t1")
		assert.Equal(t, model.TaskInProgress, task.Status)
	})
}

func TestBoard_LoadKeepsPendingLocalValues(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo, DueDate: day(3)})

	m, _ := b.Move("t1", model.TaskInReview)
	call := api.next(t)

	api.mu.Lock()
	api.tasks[0].DueDate = day(4)
	api.mu.Unlock()
	require.NoError(t, b.Load(context.Background()))

	task, _ := b.Task("t1")
	assert.Equal(t, model.TaskInReview, task.Status)
	assert.Equal(t, day(4), task.DueDate)

	call.release <- updateResult{err: errServer}
	waitDone(t, m)
	task, _ = b.Task("t1")
	assert.Equal(t, model.TaskTodo, task.Status)
}

func TestBoard_Errors(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo})

	_, err := b.Move("missing", model.TaskCompleted)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = b.Move("t1", model.TaskStatus("DONE"))
	assert.ErrorIs(t, err, model.ErrValidation)

	m, err := b.Move("t1", model.TaskCompleted)
	require.NoError(t, err)
	api.next(t)

	b.Close()
	assert.Equal(t, MutationRolledBack, m.State())
	assert.ErrorIs(t, m.Err(), context.Canceled)
	task, _ := b.Task("t1")
	assert.Equal(t, model.TaskTodo, task.Status)

	_, err = b.Move("t1", model.TaskCompleted)
	assert.ErrorIs(t, err, ErrBoardClosed)
}

func TestBoard_OnChange(t *testing.T) {
	api := newFakeTaskAPI(model.Task{ID: "t1", Status: model.TaskTodo})
	b := NewBoard(api)
	t.Cleanup(b.Close)

	var (
		mu      sync.Mutex
		reasons []ChangeReason
	)
	b.OnChange(func(c Change) {
		mu.Lock()
		reasons = append(reasons, c.Reason)
		mu.Unlock()
	})

	require.NoError(t, b.Load(context.Background()))
	m, _ := b.Move("t1", model.TaskCompleted)
	api.next(t).release <- updateResult{err: errServer}
	waitDone(t, m)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []ChangeReason{ChangeLoaded, ChangeApplied, ChangeRolledBack}, reasons)
}

// gatedListAPI 在拿到任务快照后阻塞 ListTasks，直到 release 关闭
type gatedListAPI struct {
	*fakeTaskAPI
	taken   chan struct{}
	release chan struct{}
}

func (g *gatedListAPI) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	tasks, err := g.fakeTaskAPI.ListTasks(ctx, projectID)
	close(g.taken)
	<-g.release
	return tasks, err
}

func TestBoard_SlowLoadDoesNotRevertSettledMove(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo, DueDate: day(3)})
	gated := &gatedListAPI{fakeTaskAPI: api, taken: make(chan struct{}), release: make(chan struct{})}
	b.api = gated

	loadErr := make(chan error, 1)
	go func() { loadErr <- b.Load(context.Background()) }()
	<-gated.taken

	m, err := b.Move("t1", model.TaskInProgress)
	require.NoError(t, err)
	api.next(t).release <- updateResult{task: &model.Task{ID: "t1", Status: model.TaskInProgress, DueDate: day(3)}}
	waitDone(t, m)
	require.Equal(t, MutationConfirmed, m.State())

	close(gated.release)
	require.NoError(t, <-loadErr)

	task, _ := b.Task("t1")
	assert.Equal(t, model.TaskInProgress, task.Status, "snapshot taken before the move is ignored for status")
	assert.Equal(t, day(3), task.DueDate)

	b.api = api
	failed, err := b.Move("t1", model.TaskCompleted)
	require.NoError(t, err)
	api.next(t).release <- updateResult{err: errServer}
	waitDone(t, failed)

	task, _ = b.Task("t1")
	assert.Equal(t, model.TaskInProgress, task.Status, "rollback targets the confirmed move, not the stale snapshot")
}

func TestBoard_LoadRefreshesUntouchedGroups(t *testing.T) {
	b, api := loadedBoard(t, model.Task{ID: "t1", Status: model.TaskTodo, DueDate: day(3)})

	m, _ := b.Move("t1", model.TaskInReview)
	api.next(t).release <- updateResult{task: &model.Task{ID: "t1", Status: model.TaskInReview, DueDate: day(3)}}
	waitDone(t, m)

	api.mu.Lock()
	api.tasks[0].Status = model.TaskCompleted
	api.tasks[0].DueDate = day(6)
	api.mu.Unlock()
	require.NoError(t, b.Load(context.Background()))

	task, _ := b.Task("t1")
	assert.Equal(t, model.TaskCompleted, task.Status, "a load started after settlement wins")
	assert.Equal(t, day(6), task.DueDate)
}
