package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"DigitNet/pkg/canvas"

	"github.com/google/uuid"
)

// Session 一个手写板会话，画板只由持有该会话的连接协程访问
type Session struct {
	ID     string
	Canvas *canvas.Canvas

	closeFn func() // 会话被清理时关闭底层连接
}

// SessionManager 会话管理器
type SessionManager struct {
	sessions map[string]*Session
	lastSeen map[string]time.Time // 会话ID -> 最后活跃时间
	mu       sync.RWMutex

	timeout  time.Duration // 空闲超时时间
	interval time.Duration // 清理间隔
	logger   *log.Logger
}

// NewSessionManager 创建新的会话管理器
func NewSessionManager(timeout, interval time.Duration, logger *log.Logger) *SessionManager {
	if logger == nil {
		logger = log.Default()
	}
	def := DefaultOptions()
	if timeout <= 0 {
		timeout = def.SessionTimeout
	}
	if interval <= 0 {
		interval = def.PruneInterval
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

// Open 注册新会话，closeFn 可以为nil
func (m *SessionManager) Open(closeFn func()) *Session {
	s := &Session{ID: uuid.New().String(), Canvas: canvas.New(), closeFn: closeFn}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.lastSeen[s.ID] = time.Now()
	return s
}

// Touch 更新会话的最后活跃时间
func (m *SessionManager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return fmt.Errorf("会话 %s 不存在", id)
	}
	m.lastSeen[id] = time.Now()
	return nil
}

// Close 注销会话，重复调用无副作用
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.lastSeen, id)
}

// Get 获取会话
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count 当前会话数量
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdle 清理在 now 之前空闲超过超时时间的会话，返回被清理的会话ID
func (m *SessionManager) CleanupIdle(now time.Time) []string {
	m.mu.Lock()
	var pruned []*Session
	for id, seen := range m.lastSeen {
		if now.Sub(seen) > m.timeout {
			pruned = append(pruned, m.sessions[id])
			delete(m.sessions, id)
			delete(m.lastSeen, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(pruned))
	for _, s := range pruned {
		if s.closeFn != nil {
			s.closeFn()
		}
		m.logger.Printf("清理空闲会话: %s", s.ID)
		ids = append(ids, s.ID)
	}
	return ids
}

// CloseAll 关闭并注销所有会话
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.lastSeen = make(map[string]time.Time)
	m.mu.Unlock()

	for _, s := range all {
		if s.closeFn != nil {
			s.closeFn()
		}
	}
}

// StartCleanup 启动清理协程，ctx 结束时退出
func (m *SessionManager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.CleanupIdle(now)
			}
		}
	}()
}
