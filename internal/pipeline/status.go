// Package pipeline 定义了附件处理的核心流程。
package pipeline

import (
	"figmant-go/internal/model"
	"sort"
	"sync"
)

// StatusStore 是附件 id → 状态快照的内存存储，被管道各环节共同修改。
// 所有变更都是对最新条目的原子读-改-写（Apply 接收纯函数），避免多个
// 异步回调乱序落地时丢失更新；对已移除 id 的写入会被静默丢弃。
// 状态不做持久化：进程重启后可由 upload_records 重建。
type StatusStore struct {
	mu          sync.RWMutex
	attachments map[string]model.Attachment
	subs        map[int]chan model.Attachment
	nextSubID   int
}

// NewStatusStore 创建一个空的状态存储。
func NewStatusStore() *StatusStore {
	return &StatusStore{
		attachments: make(map[string]model.Attachment),
		subs:        make(map[int]chan model.Attachment),
	}
}

// Put 登记一个新创建的附件。
func (s *StatusStore) Put(att model.Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachments[att.ID] = att
	s.broadcastLocked(att)
}

// Get 返回指定附件的当前快照。
func (s *StatusStore) Get(id string) (model.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	att, ok := s.attachments[id]
	return att, ok
}

// List 返回指定用户的全部附件快照，按创建时间与 id 稳定排序。
// UI 按附件 id 渲染，不依赖完成顺序。
func (s *StatusStore) List(userID uint) []model.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Attachment, 0)
	for _, att := range s.attachments {
		if att.UserID == userID {
			result = append(result, att)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Apply 以纯函数方式更新指定附件：fn 接收最新快照并返回新快照。
// 附件已被移除时返回 false，更新被丢弃（接受的无害空写）。
func (s *StatusStore) Apply(id string, fn func(model.Attachment) model.Attachment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.attachments[id]
	if !ok {
		return false
	}
	updated := fn(att)
	updated.ID = att.ID // id 不允许被更新函数改写
	s.attachments[id] = updated
	s.broadcastLocked(updated)
	return true
}

// Remove 从集合中移除附件。幂等：重复移除不产生错误或副作用。
// 进行中的处理链不会被强制中止，其后续状态写入将落空。
func (s *StatusStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attachments, id)
}

// Subscribe 订阅所有状态变更，返回接收通道和取消函数。
// 慢订阅者的通道写满时丢弃该条更新，不阻塞管道。
func (s *StatusStore) Subscribe() (<-chan model.Attachment, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan model.Attachment, 16)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *StatusStore) broadcastLocked(att model.Attachment) {
	for _, ch := range s.subs {
		select {
		case ch <- att:
		default:
		}
	}
}
