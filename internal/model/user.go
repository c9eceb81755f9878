package model

import "time"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleMember  Role = "MEMBER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Image        *string   `json:"image"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary 是嵌入到项目/任务中的用户展示信息
type UserSummary struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Image *string `json:"image"`
}

func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}

// MemberStats 是团队成员列表中的一行
type MemberStats struct {
	User
	OwnedProjects  int `json:"ownedProjects"`
	MemberProjects int `json:"memberProjects"`
	AssignedTasks  int `json:"assignedTasks"`
	CreatedTasks   int `json:"createdTasks"`
}

// Principal 是已认证的调用方
type Principal struct {
	UserID string
	Role   Role
}
