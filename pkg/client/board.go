package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"projecthub/internal/model"
)

var ErrBoardClosed = errors.New("board is closed")

// TaskAPI 是 Board 需要的服务端能力，*Client 实现了它
type TaskAPI interface {
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
}

// fieldGroup 是一次乐观修改涉及的字段集合，回滚以组为单位
type fieldGroup int

const (
	groupStatus   fieldGroup = iota // 看板拖拽
	groupSchedule                   // 日历改期：startDate + dueDate
)

type MutationState int

const (
	MutationPending MutationState = iota
	MutationConfirmed
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationConfirmed:
		return "confirmed"
	case MutationRolledBack:
		return "rolled_back"
	default:
		return "pending"
	}
}

// Mutation 跟踪一次乐观修改的结果
type Mutation struct {
	TaskID string

	seq   uint64
	group fieldGroup
	patch model.TaskPatch
	prev  <-chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	state MutationState
	err   error
}

// Done 在请求结束（确认或回滚）后关闭
func (m *Mutation) Done() <-chan struct{} { return m.done }

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err 是导致回滚的错误
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait 阻塞到 mutation 结束，返回其错误
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) finish(state MutationState, err error) {
	m.mu.Lock()
	m.state = state
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

type ChangeReason string

const (
	ChangeLoaded     ChangeReason = "loaded"
	ChangeApplied    ChangeReason = "applied"
	ChangeConfirmed  ChangeReason = "confirmed"
	ChangeRolledBack ChangeReason = "rolled_back"
)

// Change 通知监听者本地视图发生了变化；Loaded 时 Task 为零值
type Change struct {
	Reason   ChangeReason
	TaskID   string
	Task     model.Task
	Mutation *Mutation
}

type boardEntry struct {
	local     model.Task
	confirmed model.Task
	latest    map[fieldGroup]uint64
	pending   map[fieldGroup]int
	// touched 记录字段组最后一次发起或结算时的 epoch
	touched map[fieldGroup]uint64
	// tail 是该任务最后一个 mutation 的 done，用来按发起顺序串行发送
	tail <-chan struct{}
}

// Board 是看板/日历的本地任务视图。Move 和 Reschedule 立即修改本地状态并异步
// 提交；提交失败时只把该 mutation 涉及的字段恢复到最后一次服务端确认的值，
// 并且只在它仍是该字段组最新的修改时才恢复。同一任务的请求按发起顺序串行发送。
type Board struct {
	api       TaskAPI
	projectID string
	timeout   time.Duration
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	seq       uint64
	epoch     uint64
	order     []string
	tasks     map[string]*boardEntry
	listeners []func(Change)
}

type BoardOption func(*Board)

// WithProject 只加载指定项目的任务
func WithProject(projectID string) BoardOption {
	return func(b *Board) { b.projectID = projectID }
}

func WithRequestTimeout(d time.Duration) BoardOption {
	return func(b *Board) { b.timeout = d }
}

func WithBoardLogger(l *zap.Logger) BoardOption {
	return func(b *Board) { b.logger = l }
}

func NewBoard(api TaskAPI, opts ...BoardOption) *Board {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		api:     api,
		timeout: 10 * time.Second,
		logger:  zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   map[string]*boardEntry{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnChange 注册监听；回调在锁外执行，可以调用 Tasks
func (b *Board) OnChange(fn func(Change)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Board) emit(c Change) {
	b.mu.Lock()
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Load 从服务端拉取任务。拉取期间有 mutation 发起或结算、或仍未完成的字段组，
// 服务端快照已经过期，保留本地值和确认值。
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	startEpoch := b.epoch
	b.mu.Unlock()

	tasks, err := b.api.ListTasks(ctx, b.projectID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBoardClosed
	}
	next := make(map[string]*boardEntry, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		e, ok := b.tasks[t.ID]
		if !ok {
			e = newBoardEntry()
		}
		local, confirmed := t, t
		for _, g := range []fieldGroup{groupStatus, groupSchedule} {
			if e.pending[g] > 0 || e.touched[g] > startEpoch {
				copyGroup(&local, &e.local, g)
				copyGroup(&confirmed, &e.confirmed, g)
			}
		}
		e.confirmed, e.local = confirmed, local
		next[t.ID] = e
		order = append(order, t.ID)
	}
	b.tasks, b.order = next, order
	b.mu.Unlock()

	b.emit(Change{Reason: ChangeLoaded})
	return nil
}

// Tasks 返回本地视图的副本，顺序与服务端一致
func (b *Board) Tasks() []model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Task, 0, len(b.order))
	for _, id := range b.order {
		if e, ok := b.tasks[id]; ok {
			out = append(out, e.local)
		}
	}
	return out
}

// Task 返回单个任务的本地值
func (b *Board) Task(id string) (model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return e.local, true
}

// Column 返回某个状态列中的任务
func (b *Board) Column(status model.TaskStatus) []model.Task {
	var out []model.Task
	for _, t := range b.Tasks() {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Move 把任务拖到另一列
func (b *Board) Move(id string, status model.TaskStatus) (*Mutation, error) {
	if !status.Valid() {
		return nil, model.NewValidationError("status", "unknown task status")
	}
	return b.mutate(id, groupStatus, model.TaskPatch{Status: model.Some(status)}, func(t *model.Task) {
		t.Status = status
	})
}

// Reschedule 修改开始和截止日期；nil 表示清空
func (b *Board) Reschedule(id string, start, due *time.Time) (*Mutation, error) {
	patch := model.TaskPatch{
		StartDate: model.OptionalFromPtr(start),
		DueDate:   model.OptionalFromPtr(due),
	}
	return b.mutate(id, groupSchedule, patch, func(t *model.Task) {
		t.StartDate = clonePtr(start)
		t.DueDate = clonePtr(due)
	})
}

func (b *Board) mutate(id string, group fieldGroup, patch model.TaskPatch, apply func(*model.Task)) (*Mutation, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBoardClosed
	}
	e, ok := b.tasks[id]
	if !ok {
		b.mu.Unlock()
		return nil, model.NotFound("task", id)
	}

	b.seq++
	m := &Mutation{
		TaskID: id,
		seq:    b.seq,
		group:  group,
		patch:  patch,
		prev:   e.tail,
		done:   make(chan struct{}),
	}
	apply(&e.local)
	b.epoch++
	e.touched[group] = b.epoch
	e.latest[group] = m.seq
	e.pending[group]++
	e.tail = m.done
	snapshot := e.local
	b.wg.Add(1)
	b.mu.Unlock()

	b.emit(Change{Reason: ChangeApplied, TaskID: id, Task: snapshot, Mutation: m})
	go b.send(e, m)
	return m, nil
}

func (b *Board) send(e *boardEntry, m *Mutation) {
	defer b.wg.Done()

	var (
		updated *model.Task
		err     error
	)
	if m.prev != nil {
		select {
		case <-m.prev:
		case <-b.ctx.Done():
			err = b.ctx.Err()
		}
	}
	if err == nil {
		ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
		updated, err = b.api.UpdateTask(ctx, m.TaskID, m.patch)
		cancel()
	}

	b.mu.Lock()
	e.pending[m.group]--
	b.epoch++
	e.touched[m.group] = b.epoch
	reason := ChangeConfirmed
	if err == nil {
		// 只更新确认值，本地视图不做对账
		e.confirmed = *updated
	} else {
		reason = ChangeRolledBack
		if e.latest[m.group] == m.seq {
			copyGroup(&e.local, &e.confirmed, m.group)
		}
	}
	snapshot := e.local
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("Optimistic task update rolled back",
			zap.String("task_id", m.TaskID),
			zap.Uint64("seq", m.seq),
			zap.Error(err),
		)
		m.finish(MutationRolledBack, err)
	} else {
		m.finish(MutationConfirmed, nil)
	}
	b.emit(Change{Reason: reason, TaskID: m.TaskID, Task: snapshot, Mutation: m})
}

// Close 取消所有未完成的请求（它们会回滚）并等待结束；之后的修改返回 ErrBoardClosed
func (b *Board) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func newBoardEntry() *boardEntry {
	return &boardEntry{
		latest:  map[fieldGroup]uint64{},
		pending: map[fieldGroup]int{},
		touched: map[fieldGroup]uint64{},
	}
}

func copyGroup(dst, src *model.Task, g fieldGroup) {
	switch g {
	case groupStatus:
		dst.Status = src.Status
	case groupSchedule:
		dst.StartDate = clonePtr(src.StartDate)
		dst.DueDate = clonePtr(src.DueDate)
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
