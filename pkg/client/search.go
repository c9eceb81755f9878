package client

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"projecthub/internal/model"
)

const (
	DefaultSearchDelay = 300 * time.Millisecond
	MinSearchRunes     = 2
)

// SearchAPI 是 Searcher 需要的服务端能力，*Client 实现了它
type SearchAPI interface {
	Search(ctx context.Context, term string) (model.SearchResult, error)
}

type SearchResponse struct {
	Term   string
	Result model.SearchResult
	Err    error
}

// Searcher 对输入做防抖：只为最后一次输入发请求，也只投递最后一次输入的结果。
// 少于两个字符的输入立即得到空结果，不发请求。
type Searcher struct {
	api     SearchAPI
	delay   time.Duration
	timeout time.Duration
	deliver func(SearchResponse)
	logger  *zap.Logger

	mu       sync.Mutex
	gen      uint64
	closed   bool
	timer    *time.Timer
	inflight context.CancelFunc

	// deliverMu 保证投递按代际顺序进行
	deliverMu sync.Mutex
}

type SearchOption func(*Searcher)

func WithSearchDelay(d time.Duration) SearchOption {
	return func(s *Searcher) { s.delay = d }
}

func WithSearchLogger(l *zap.Logger) SearchOption {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher deliver 在后台 goroutine 中调用，不能在回调里再调用 Type 或 Close
func NewSearcher(api SearchAPI, deliver func(SearchResponse), opts ...SearchOption) *Searcher {
	s := &Searcher{
		api:     api,
		delay:   DefaultSearchDelay,
		timeout: 10 * time.Second,
		deliver: deliver,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type 记录最新输入，取消尚未发出的计时器和正在进行的请求
func (s *Searcher) Type(term string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	s.resetLocked()

	if utf8.RuneCountInString(strings.TrimSpace(term)) < MinSearchRunes {
		s.mu.Unlock()
		s.publish(gen, SearchResponse{Term: term, Result: model.EmptySearchResult()})
		return
	}
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen, term) })
	s.mu.Unlock()
}

func (s *Searcher) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

func (s *Searcher) fire(gen uint64, term string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.inflight = cancel
	s.mu.Unlock()
	defer cancel()

	result, err := s.api.Search(ctx, term)
	if err != nil {
		s.logger.Debug("Search request failed", zap.String("term", term), zap.Error(err))
	}
	s.publish(gen, SearchResponse{Term: term, Result: result, Err: err})
}

// publish 丢弃过期代际的结果
func (s *Searcher) publish(gen uint64, resp SearchResponse) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	stale := s.closed || gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.deliver(resp)
}

// Close 之后不再投递任何结果；正在执行的 deliver 会先执行完，所以不能在回调里调用 Close
func (s *Searcher) Close() {
	s.mu.Lock()
	s.closed = true
	s.resetLocked()
	s.mu.Unlock()

	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}
