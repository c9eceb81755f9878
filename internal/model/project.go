package model

import "time"

type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "PLANNING"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectOnHold     ProjectStatus = "ON_HOLD"
	ProjectCompleted  ProjectStatus = "COMPLETED"
	ProjectCancelled  ProjectStatus = "CANCELLED"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectInProgress, ProjectOnHold, ProjectCompleted, ProjectCancelled:
		return true
	}
	return false
}

type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"startDate"`
	EndDate     *time.Time    `json:"endDate"`
	Progress    int           `json:"progress"`
	OwnerID     string        `json:"ownerId"`
	// MemberIDs 不含 owner
	MemberIDs []string  `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Owner     *UserSummary  `json:"owner,omitempty"`
	Members   []UserSummary `json:"members,omitempty"`
	TaskCount *int          `json:"taskCount,omitempty"`
}

// HasMember 判断 userID 是否在成员集合中（不含 owner）
func (p *Project) HasMember(userID string) bool {
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ProjectRef 是任务、里程碑、搜索结果中引用的项目
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Project) Ref() *ProjectRef {
	if p == nil {
		return nil
	}
	return &ProjectRef{ID: p.ID, Name: p.Name}
}

// ProjectDetail 是 GetProject 的返回
type ProjectDetail struct {
	Project
	Tasks      []Task      `json:"tasks"`
	Milestones []Milestone `json:"milestones"`
}

type ProjectInput struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
	StartDate   *time.Time     `json:"startDate,omitempty"`
	EndDate     *time.Time     `json:"endDate,omitempty"`
}

// ProjectPatch 每个字段都是三态；OwnerID 只用于拒绝修改 owner 的请求
type ProjectPatch struct {
	Name        Optional[string]        `json:"name,omitzero"`
	Description Optional[string]        `json:"description,omitzero"`
	Status      Optional[ProjectStatus] `json:"status,omitzero"`
	StartDate   Optional[time.Time]     `json:"startDate,omitzero"`
	EndDate     Optional[time.Time]     `json:"endDate,omitzero"`
	Progress    Optional[int]           `json:"progress,omitzero"`
	OwnerID     Optional[string]        `json:"ownerId,omitzero"`
}

func (p ProjectPatch) IsEmpty() bool {
	return !p.Name.Set && !p.Description.Set && !p.Status.Set &&
		!p.StartDate.Set && !p.EndDate.Set && !p.Progress.Set && !p.OwnerID.Set
}
