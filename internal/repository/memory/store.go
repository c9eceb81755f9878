// Package memory is an in-process implementation of repository.Store.
//
// Transactions are serialized and implemented by snapshot and restore, so a
// failing WithinTx callback leaves no partial writes behind.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/pkg/outbox"
)

type data struct {
	users         map[string]model.User
	projects      map[string]model.Project
	members       map[string][]string
	tasks         map[string]model.Task
	milestones    map[string]model.Milestone
	notifications map[string]model.Notification
	events        []outbox.Event
	nextEventID   int64
}

func newData() *data {
	return &data{
		users:         map[string]model.User{},
		projects:      map[string]model.Project{},
		members:       map[string][]string{},
		tasks:         map[string]model.Task{},
		milestones:    map[string]model.Milestone{},
		notifications: map[string]model.Notification{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.projects {
		c.projects[k] = v
	}
	for k, v := range d.members {
		c.members[k] = slices.Clone(v)
	}
	for k, v := range d.tasks {
		c.tasks[k] = v
	}
	for k, v := range d.milestones {
		c.milestones[k] = v
	}
	for k, v := range d.notifications {
		c.notifications[k] = v
	}
	c.events = slices.Clone(d.events)
	c.nextEventID = d.nextEventID
	return c
}

type state struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	d    *data
}

// Store 实现 repository.Store
type Store struct {
	st   *state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: &state{d: newData()}}
}

func (s *Store) Users() repository.UserRepository                 { return &userRepo{st: s.st} }
func (s *Store) Projects() repository.ProjectRepository           { return &projectRepo{st: s.st} }
func (s *Store) Tasks() repository.TaskRepository                 { return &taskRepo{st: s.st} }
func (s *Store) Milestones() repository.MilestoneRepository       { return &milestoneRepo{st: s.st} }
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{st: s.st} }
func (s *Store) Events() repository.EventRepository               { return &eventRepo{st: s.st} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.st.txMu.Lock()
	defer s.st.txMu.Unlock()

	s.st.mu.RLock()
	snapshot := s.st.d.clone()
	s.st.mu.RUnlock()

	if err := fn(ctx, &Store{st: s.st, inTx: true}); err != nil {
		s.st.mu.Lock()
		s.st.d = snapshot
		s.st.mu.Unlock()
		return err
	}
	return nil
}

// OutboxEvents 返回已写入的 outbox 事件副本
func (s *Store) OutboxEvents() []outbox.Event {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return slices.Clone(s.st.d.events)
}

func (st *state) read(fn func(d *data)) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fn(st.d)
}

func (st *state) write(fn func(d *data)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.d)
}

func containsFold(s, term string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(term))
}

func derefContainsFold(s *string, term string) bool {
	return s != nil && containsFold(*s, term)
}

func (d *data) projectWithMembers(id string) (model.Project, bool) {
	p, ok := d.projects[id]
	if !ok {
		return p, false
	}
	p.MemberIDs = slices.Clone(d.members[id])
	return p, true
}

func (d *data) canAccessProject(userID, projectID string) bool {
	p, ok := d.projects[projectID]
	if !ok {
		return false
	}
	return p.OwnerID == userID || slices.Contains(d.members[projectID], userID)
}

func newer(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}

// ---- users ----

type userRepo struct{ st *state }

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	var err error
	r.st.write(func(d *data) {
		for _, existing := range d.users {
			if strings.EqualFold(existing.Email, u.Email) {
				err = model.ErrConflict
				return
			}
		}
		if _, ok := d.users[u.ID]; ok {
			err = model.ErrConflict
			return
		}
		d.users[u.ID] = *u
	})
	return err
}

func (r *userRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	var out *model.User
	r.st.read(func(d *data) {
		if u, ok := d.users[id]; ok {
			out = &u
		}
	})
	if out == nil {
		return nil, model.NotFound("user", id)
	}
	return out, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	r.st.read(func(d *data) {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				u := u
				out = &u
				return
			}
		}
	})
	if out == nil {
		return nil, model.NotFound("user", email)
	}
	return out, nil
}

func (r *userRepo) GetMany(_ context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	r.st.read(func(d *data) {
		for _, id := range ids {
			if u, ok := d.users[id]; ok {
				out[id] = &u
			}
		}
	})
	return out, nil
}

func (r *userRepo) Count(_ context.Context) (int, error) {
	var n int
	r.st.read(func(d *data) { n = len(d.users) })
	return n, nil
}

func (r *userRepo) ListWithStats(_ context.Context) ([]model.MemberStats, error) {
	var out []model.MemberStats
	r.st.read(func(d *data) {
		for _, u := range d.users {
			m := model.MemberStats{User: u}
			for _, p := range d.projects {
				if p.OwnerID == u.ID {
					m.OwnedProjects++
				}
			}
			for _, ids := range d.members {
				if slices.Contains(ids, u.ID) {
					m.MemberProjects++
				}
			}
			for _, t := range d.tasks {
				if t.IsAssignee(u.ID) {
					m.AssignedTasks++
				}
				if t.CreatorID == u.ID {
					m.CreatedTasks++
				}
			}
			out = append(out, m)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

// ---- projects ----

type projectRepo struct{ st *state }

func (r *projectRepo) Create(_ context.Context, p *model.Project) error {
	var err error
	r.st.write(func(d *data) {
		if _, ok := d.projects[p.ID]; ok {
			err = model.ErrConflict
			return
		}
		row := *p
		row.MemberIDs = nil
		d.projects[p.ID] = row
		if len(p.MemberIDs) > 0 {
			d.members[p.ID] = slices.Clone(p.MemberIDs)
		}
	})
	return err
}

func (r *projectRepo) GetByID(_ context.Context, id string) (*model.Project, error) {
	var out *model.Project
	r.st.read(func(d *data) {
		if p, ok := d.projectWithMembers(id); ok {
			out = &p
		}
	})
	if out == nil {
		return nil, model.NotFound("project", id)
	}
	return out, nil
}

func (r *projectRepo) GetMany(_ context.Context, ids []string) (map[string]*model.Project, error) {
	out := make(map[string]*model.Project, len(ids))
	r.st.read(func(d *data) {
		for _, id := range ids {
			if p, ok := d.projectWithMembers(id); ok {
				out[id] = &p
			}
		}
	})
	return out, nil
}

func (r *projectRepo) ListAccessible(_ context.Context, userID string) ([]model.Project, error) {
	var out []model.Project
	r.st.read(func(d *data) {
		for id := range d.projects {
			if d.canAccessProject(userID, id) {
				p, _ := d.projectWithMembers(id)
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].UpdatedAt, out[j].UpdatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *projectRepo) Update(_ context.Context, p *model.Project) error {
	var err error
	r.st.write(func(d *data) {
		existing, ok := d.projects[p.ID]
		if !ok {
			err = model.NotFound("project", p.ID)
			return
		}
		row := *p
		row.OwnerID = existing.OwnerID
		row.CreatedAt = existing.CreatedAt
		row.MemberIDs = nil
		row.Owner, row.Members, row.TaskCount = nil, nil, nil
		d.projects[p.ID] = row
	})
	return err
}

func (r *projectRepo) Delete(_ context.Context, id string) error {
	var err error
	r.st.write(func(d *data) {
		if _, ok := d.projects[id]; !ok {
			err = model.NotFound("project", id)
			return
		}
		delete(d.projects, id)
		delete(d.members, id)
	})
	return err
}

func (r *projectRepo) AddMember(_ context.Context, projectID, userID string) (bool, error) {
	added := false
	r.st.write(func(d *data) {
		if slices.Contains(d.members[projectID], userID) {
			return
		}
		d.members[projectID] = append(d.members[projectID], userID)
		added = true
	})
	return added, nil
}

func (r *projectRepo) RemoveMember(_ context.Context, projectID, userID string) (bool, error) {
	removed := false
	r.st.write(func(d *data) {
		ids := d.members[projectID]
		if i := slices.Index(ids, userID); i >= 0 {
			d.members[projectID] = slices.Delete(ids, i, i+1)
			removed = true
		}
	})
	return removed, nil
}

func (r *projectRepo) DeleteMembers(_ context.Context, projectID string) error {
	r.st.write(func(d *data) { delete(d.members, projectID) })
	return nil
}

func (r *projectRepo) Search(_ context.Context, userID, term string, limit int) ([]model.ProjectHit, error) {
	var matched []model.Project
	r.st.read(func(d *data) {
		for id, p := range d.projects {
			if !d.canAccessProject(userID, id) {
				continue
			}
			if containsFold(p.Name, term) || derefContainsFold(p.Description, term) {
				matched = append(matched, p)
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].UpdatedAt, matched[j].UpdatedAt, matched[i].ID, matched[j].ID)
	})

	hits := []model.ProjectHit{}
	for _, p := range matched {
		if len(hits) == limit {
			break
		}
		hits = append(hits, model.ProjectHit{ID: p.ID, Name: p.Name, Status: p.Status})
	}
	return hits, nil
}

// ---- tasks ----

type taskRepo struct{ st *state }

func (r *taskRepo) Create(_ context.Context, t *model.Task) error {
	var err error
	r.st.write(func(d *data) {
		if _, ok := d.projects[t.ProjectID]; !ok {
			err = model.NotFound("project", t.ProjectID)
			return
		}
		row := *t
		row.Project, row.Assignee, row.Creator = nil, nil, nil
		d.tasks[t.ID] = row
	})
	return err
}

func (r *taskRepo) GetByID(_ context.Context, id string) (*model.Task, error) {
	var out *model.Task
	r.st.read(func(d *data) {
		if t, ok := d.tasks[id]; ok {
			out = &t
		}
	})
	if out == nil {
		return nil, model.NotFound("task", id)
	}
	return out, nil
}

func (r *taskRepo) collect(filter func(d *data, t model.Task) bool) []model.Task {
	var out []model.Task
	r.st.read(func(d *data) {
		for _, t := range d.tasks {
			if filter(d, t) {
				out = append(out, t)
			}
		}
	})
	return out
}

func sortByCreatedDesc(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return newer(tasks[i].CreatedAt, tasks[j].CreatedAt, tasks[i].ID, tasks[j].ID)
	})
}

func (r *taskRepo) ListVisible(_ context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	out := r.collect(func(d *data, t model.Task) bool {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			return false
		}
		return t.CreatorID == userID || t.IsAssignee(userID) || d.canAccessProject(userID, t.ProjectID)
	})
	sortByCreatedDesc(out)
	return out, nil
}

func (r *taskRepo) ListByProject(_ context.Context, projectID string) ([]model.Task, error) {
	out := r.collect(func(_ *data, t model.Task) bool { return t.ProjectID == projectID })
	sortByCreatedDesc(out)
	return out, nil
}

func (r *taskRepo) CountByProjects(_ context.Context, projectIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(projectIDs))
	r.st.read(func(d *data) {
		for _, t := range d.tasks {
			if slices.Contains(projectIDs, t.ProjectID) {
				out[t.ProjectID]++
			}
		}
	})
	return out, nil
}

func (r *taskRepo) Update(_ context.Context, t *model.Task) error {
	var err error
	r.st.write(func(d *data) {
		existing, ok := d.tasks[t.ID]
		if !ok {
			err = model.NotFound("task", t.ID)
			return
		}
		row := *t
		row.ProjectID = existing.ProjectID
		row.CreatorID = existing.CreatorID
		row.CreatedAt = existing.CreatedAt
		row.Project, row.Assignee, row.Creator = nil, nil, nil
		d.tasks[t.ID] = row
	})
	return err
}

func (r *taskRepo) Delete(_ context.Context, id string) error {
	var err error
	r.st.write(func(d *data) {
		if _, ok := d.tasks[id]; !ok {
			err = model.NotFound("task", id)
			return
		}
		delete(d.tasks, id)
	})
	return err
}

func (r *taskRepo) DeleteByProject(_ context.Context, projectID string) (int, error) {
	n := 0
	r.st.write(func(d *data) {
		for id, t := range d.tasks {
			if t.ProjectID == projectID {
				delete(d.tasks, id)
				n++
			}
		}
	})
	return n, nil
}

func (r *taskRepo) ListDueBetween(_ context.Context, from, to time.Time) ([]model.Task, error) {
	out := r.collect(func(_ *data, t model.Task) bool {
		return t.Status != model.TaskCompleted && t.DueDate != nil &&
			!t.DueDate.Before(from) && t.DueDate.Before(to)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

func (r *taskRepo) Search(_ context.Context, userID, term string, limit int) ([]model.TaskHit, error) {
	type match struct {
		task    model.Task
		project model.Project
	}
	var matched []match
	r.st.read(func(d *data) {
		for _, t := range d.tasks {
			if !d.canAccessProject(userID, t.ProjectID) {
				continue
			}
			if containsFold(t.Title, term) || derefContainsFold(t.Description, term) {
				matched = append(matched, match{task: t, project: d.projects[t.ProjectID]})
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].task, matched[j].task
		return newer(a.UpdatedAt, b.UpdatedAt, a.ID, b.ID)
	})

	hits := []model.TaskHit{}
	for _, m := range matched {
		if len(hits) == limit {
			break
		}
		hits = append(hits, model.TaskHit{
			ID:      m.task.ID,
			Title:   m.task.Title,
			Status:  m.task.Status,
			Project: model.ProjectRef{ID: m.project.ID, Name: m.project.Name},
		})
	}
	return hits, nil
}

// ---- milestones ----

type milestoneRepo struct{ st *state }

func (r *milestoneRepo) Create(_ context.Context, m *model.Milestone) error {
	r.st.write(func(d *data) {
		row := *m
		row.Project = nil
		d.milestones[m.ID] = row
	})
	return nil
}

func sortByDateAsc(ms []model.Milestone) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].Date.Equal(ms[j].Date) {
			return ms[i].Date.Before(ms[j].Date)
		}
		return ms[i].ID < ms[j].ID
	})
}

func (r *milestoneRepo) ListAccessible(_ context.Context, userID string) ([]model.Milestone, error) {
	var out []model.Milestone
	r.st.read(func(d *data) {
		for _, m := range d.milestones {
			if !d.canAccessProject(userID, m.ProjectID) {
				continue
			}
			p := d.projects[m.ProjectID]
			m.Project = p.Ref()
			out = append(out, m)
		}
	})
	sortByDateAsc(out)
	return out, nil
}

func (r *milestoneRepo) ListByProject(_ context.Context, projectID string) ([]model.Milestone, error) {
	var out []model.Milestone
	r.st.read(func(d *data) {
		for _, m := range d.milestones {
			if m.ProjectID == projectID {
				out = append(out, m)
			}
		}
	})
	sortByDateAsc(out)
	return out, nil
}

func (r *milestoneRepo) DeleteByProject(_ context.Context, projectID string) (int, error) {
	n := 0
	r.st.write(func(d *data) {
		for id, m := range d.milestones {
			if m.ProjectID == projectID {
				delete(d.milestones, id)
				n++
			}
		}
	})
	return n, nil
}

// ---- notifications ----

type notificationRepo struct{ st *state }

func (r *notificationRepo) Insert(_ context.Context, n *model.Notification) (bool, error) {
	inserted := false
	r.st.write(func(d *data) {
		for _, existing := range d.notifications {
			if existing.DedupKey == n.DedupKey {
				return
			}
		}
		d.notifications[n.ID] = *n
		inserted = true
	})
	return inserted, nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	var out []model.Notification
	r.st.read(func(d *data) {
		for _, n := range d.notifications {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, id, userID string) error {
	var err error
	r.st.write(func(d *data) {
		n, ok := d.notifications[id]
		if !ok || n.UserID != userID {
			err = model.NotFound("notification", id)
			return
		}
		n.Read = true
		d.notifications[id] = n
	})
	return err
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	count := 0
	r.st.write(func(d *data) {
		for id, n := range d.notifications {
			if n.UserID == userID && !n.Read {
				n.Read = true
				d.notifications[id] = n
				count++
			}
		}
	})
	return count, nil
}

// ---- outbox ----

type eventRepo struct{ st *state }

func (r *eventRepo) Append(_ context.Context, event *outbox.Event) error {
	r.st.write(func(d *data) {
		d.nextEventID++
		event.ID = d.nextEventID
		if event.Status == "" {
			event.Status = outbox.StatusPending
		}
		now := time.Now()
		event.CreatedAt, event.UpdatedAt = now, now
		d.events = append(d.events, *event)
	})
	return nil
}

// Outbox 返回 outbox.Store 视图，供 Dispatcher/ReplayService 使用
func (s *Store) Outbox() outbox.Store { return &outboxStore{st: s.st} }

type outboxStore struct{ st *state }

var _ outbox.Store = (*outboxStore)(nil)

func (o *outboxStore) collect(limit int, match func(e outbox.Event) bool) []*outbox.Event {
	var out []*outbox.Event
	o.st.read(func(d *data) {
		for _, e := range d.events {
			if len(out) == limit {
				return
			}
			if match(e) {
				e := e
				out = append(out, &e)
			}
		}
	})
	return out
}

func (o *outboxStore) GetPendingEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	now := time.Now()
	return o.collect(limit, func(e outbox.Event) bool {
		return e.Status == outbox.StatusPending && (e.NextRetryAt == nil || !e.NextRetryAt.After(now))
	}), nil
}

func (o *outboxStore) GetFailedEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	return o.collect(limit, func(e outbox.Event) bool { return e.Status == outbox.StatusFailed }), nil
}

func (o *outboxStore) GetEventByID(_ context.Context, eventID int64) (*outbox.Event, error) {
	found := o.collect(1, func(e outbox.Event) bool { return e.ID == eventID })
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %d", outbox.ErrEventNotFound, eventID)
	}
	return found[0], nil
}

func (o *outboxStore) update(eventID int64, fn func(e *outbox.Event)) {
	o.st.write(func(d *data) {
		for i := range d.events {
			if d.events[i].ID == eventID {
				fn(&d.events[i])
				d.events[i].UpdatedAt = time.Now()
				return
			}
		}
	})
}

func (o *outboxStore) MarkAsSent(_ context.Context, eventID int64) error {
	o.update(eventID, func(e *outbox.Event) { e.Status = outbox.StatusSent })
	return nil
}

func (o *outboxStore) MarkAsFailed(_ context.Context, eventID int64, maxRetries int) error {
	o.update(eventID, func(e *outbox.Event) {
		e.RetryCount++
		if e.RetryCount >= maxRetries {
			e.Status = outbox.StatusFailed
			e.NextRetryAt = nil
			return
		}
		e.Status = outbox.StatusPending
		next := time.Now().Add(time.Duration(e.RetryCount) * 5 * time.Second)
		e.NextRetryAt = &next
	})
	return nil
}
