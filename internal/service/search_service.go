package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"projecthub/internal/model"
	"projecthub/internal/repository"
	"projecthub/pkg/metrics"
)

const (
	// MinSearchLength 短于该长度的关键字不查询
	MinSearchLength = 2
	// MaxSearchResults 每类结果的上限
	MaxSearchResults = 5
)

type SearchService struct {
	base
}

func NewSearchService(store repository.Store, logger *zap.Logger) *SearchService {
	return &SearchService{base: newBase(store, logger)}
}

// Search 在调用方可访问的项目和任务中做不区分大小写的子串匹配。
// 读失败时降级为空结果，只记录日志。
func (s *SearchService) Search(ctx context.Context, p model.Principal, term string) (model.SearchResult, error) {
	if err := requirePrincipal(p); err != nil {
		return model.SearchResult{}, err
	}

	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinSearchLength {
		metrics.IncrementSearch("skipped")
		return model.EmptySearchResult(), nil
	}
	log := s.log(ctx).With(zap.String("user_id", p.UserID), zap.String("term", term))

	result := model.EmptySearchResult()
	projects, err := s.store.Projects().Search(ctx, p.UserID, term, MaxSearchResults)
	if err != nil {
		log.Error("Search: project query failed, returning empty result", zap.Error(err))
		metrics.IncrementSearch("degraded")
		return model.EmptySearchResult(), nil
	}
	tasks, err := s.store.Tasks().Search(ctx, p.UserID, term, MaxSearchResults)
	if err != nil {
		log.Error("Search: task query failed, returning empty result", zap.Error(err))
		metrics.IncrementSearch("degraded")
		return model.EmptySearchResult(), nil
	}

	if len(projects) > MaxSearchResults {
		projects = projects[:MaxSearchResults]
	}
	if len(tasks) > MaxSearchResults {
		tasks = tasks[:MaxSearchResults]
	}
	if projects != nil {
		result.Projects = projects
	}
	if tasks != nil {
		result.Tasks = tasks
	}

	metrics.IncrementSearch("success")
	log.Debug("Search: success",
		zap.Int("project_count", len(result.Projects)),
		zap.Int("task_count", len(result.Tasks)),
	)
	return result, nil
}
