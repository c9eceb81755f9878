package model

type ProjectHit struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Status ProjectStatus `json:"status"`
}

type TaskHit struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Status  TaskStatus `json:"status"`
	Project ProjectRef `json:"project"`
}

type SearchResult struct {
	Projects []ProjectHit `json:"projects"`
	Tasks    []TaskHit    `json:"tasks"`
}

// EmptySearchResult 返回非 nil 切片，序列化为 []
func EmptySearchResult() SearchResult {
	return SearchResult{Projects: []ProjectHit{}, Tasks: []TaskHit{}}
}
