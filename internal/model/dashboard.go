package model

// DashboardStats 是首页的统计卡片；任务只统计调用方创建的
type DashboardStats struct {
	ProjectCount   int `json:"projectCount"`
	TaskCount      int `json:"taskCount"`
	MemberCount    int `json:"memberCount"`
	CompletedTasks int `json:"completedTasks"`
	// CompletionRate 0-100，四舍五入
	CompletionRate int `json:"completionRate"`
}

type DashboardSummary struct {
	Stats          DashboardStats `json:"stats"`
	RecentProjects []Project      `json:"recentProjects"`
	UpcomingTasks  []Task         `json:"upcomingTasks"`
}

// TimelineProject 是时间线上的一行：有开始日期的项目及其带日期的任务和里程碑
type TimelineProject struct {
	Project
	Tasks      []Task      `json:"tasks"`
	Milestones []Milestone `json:"milestones"`
}
