package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/model"
	"projecthub/internal/repository"
)

// countingStore 统计搜索查询次数，可选地让查询失败
type countingStore struct {
	repository.Store
	searches atomic.Int32
	fail     bool
}

func (s *countingStore) Projects() repository.ProjectRepository {
	return &countingProjects{ProjectRepository: s.Store.Projects(), parent: s}
}

type countingProjects struct {
	repository.ProjectRepository
	parent *countingStore
}

func (r *countingProjects) Search(ctx context.Context, userID, term string, limit int) ([]model.ProjectHit, error) {
	r.parent.searches.Add(1)
	if r.parent.fail {
		return nil, model.NewStorageError("search projects", errors.New("timeout"))
	}
	return r.ProjectRepository.Search(ctx, userID, term, limit)
}

func TestSearchService_Floor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProject(t, alice, "Apollo")

	counting := &countingStore{Store: f.mem}
	f.wire(counting)

	for _, term := range []string{"", " ", "a", "  a  ", "é"} {
		res, err := f.search.Search(ctx, alice, term)
		require.NoError(t, err)
		assert.Equal(t, model.EmptySearchResult(), res)
	}
	assert.Equal(t, int32(0), counting.searches.Load(), "short terms never reach the store")

	res, err := f.search.Search(ctx, alice, "ap")
	require.NoError(t, err)
	assert.Equal(t, int32(1), counting.searches.Load())
	require.Len(t, res.Projects, 1)
}

func TestSearchService_Matching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createProject(t, alice, "Website Redesign", bob.UserID)
	f.createProject(t, carol, "Secret website")
	for i := range 7 {
		f.createProject(t, alice, fmt.Sprintf("Launch %d", i))
	}
	_, err := f.tasks.Create(ctx, alice, model.TaskInput{Title: "Draft copy", ProjectID: p.ID, Description: strPtr("landing PAGE text")})
	require.NoError(t, err)

	t.Run("case insensitive over name and description", func(t *testing.T) {
		res, err := f.search.Search(ctx, bob, "WEBSITE")
		require.NoError(t, err)
		require.Len(t, res.Projects, 1)
		assert.Equal(t, "Website Redesign", res.Projects[0].Name)
		assert.Empty(t, res.Tasks)

		res, err = f.search.Search(ctx, bob, "page")
		require.NoError(t, err)
		require.Len(t, res.Tasks, 1)
		assert.Equal(t, "Draft copy", res.Tasks[0].Title)
		assert.Equal(t, model.ProjectRef{ID: p.ID, Name: "Website Redesign"}, res.Tasks[0].Project)
	})

	t.Run("capped at five, most recently updated first", func(t *testing.T) {
		res, err := f.search.Search(ctx, alice, "launch")
		require.NoError(t, err)
		require.Len(t, res.Projects, MaxSearchResults)
		assert.Equal(t, "Launch 6", res.Projects[0].Name)
		assert.Equal(t, "Launch 2", res.Projects[4].Name)
		assert.NotNil(t, res.Tasks)
	})

	t.Run("restricted to accessible projects", func(t *testing.T) {
		res, err := f.search.Search(ctx, carol, "website")
		require.NoError(t, err)
		require.Len(t, res.Projects, 1)
		assert.Equal(t, "Secret website", res.Projects[0].Name)

		res, err = f.search.Search(ctx, carol, "page")
		require.NoError(t, err)
		assert.Empty(t, res.Tasks)
	})

	t.Run("storage failure degrades to empty", func(t *testing.T) {
		f.wire(&countingStore{Store: f.mem, fail: true})
		res, err := f.search.Search(ctx, alice, "launch")
		require.NoError(t, err)
		assert.Equal(t, model.EmptySearchResult(), res)
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, err := f.search.Search(ctx, model.Principal{}, "launch")
		assert.ErrorIs(t, err, model.ErrUnauthorized)
	})
}
