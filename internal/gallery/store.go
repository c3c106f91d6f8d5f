package gallery

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/anoixa/image-gallery/internal/metrics"
	"github.com/anoixa/image-gallery/internal/models"
)

// ErrNotInCache 目标记录不在缓存中，属于正常的空操作
var ErrNotInCache = errors.New("record not in gallery cache")

// ErrIncompleteRecord 记录缺少必填字段，拒绝写入
var ErrIncompleteRecord = errors.New("record is missing required fields")

// Snapshot 某一时刻的缓存内容，只读
type Snapshot struct {
	Version uint64
	Records []models.ImageRecord
}

// Store 画廊共享缓存
// 所有写操作在 mu 下构造新切片，再一次性发布；读操作无锁读取已发布的快照
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New 创建空缓存
func New() *Store {
	s := &Store{subs: make(map[int]chan Snapshot)}
	s.current.Store(&Snapshot{Records: []models.ImageRecord{}})
	return s
}

// Snapshot 返回当前内容的拷贝，调用方可以随意修改
func (s *Store) Snapshot() []models.ImageRecord {
	snap := s.current.Load()
	out := make([]models.ImageRecord, len(snap.Records))
	for i, r := range snap.Records {
		out[i] = r.Clone()
	}
	return out
}

// Version 每次成功写入后递增
func (s *Store) Version() uint64 {
	return s.current.Load().Version
}

// Len 当前记录数
func (s *Store) Len() int {
	return len(s.current.Load().Records)
}

// Get 按 id 查找
func (s *Store) Get(id int64) (models.ImageRecord, bool) {
	snap := s.current.Load()
	if i := indexOf(snap.Records, id); i >= 0 {
		return snap.Records[i].Clone(), true
	}
	return models.ImageRecord{}, false
}

// IDs 当前顺序下的全部 id
func (s *Store) IDs() []int64 {
	snap := s.current.Load()
	ids := make([]int64, len(snap.Records))
	for i, r := range snap.Records {
		ids[i] = r.ID
	}
	return ids
}

// ReplaceAll 整体替换，重复 id 只保留第一次出现
func (s *Store) ReplaceAll(records []models.ImageRecord) {
	next := make([]models.ImageRecord, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		next = append(next, r.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish("replace_all", next)
}

// Append 追加到末尾；id 已存在时不做任何修改
func (s *Store) Append(record models.ImageRecord) (bool, error) {
	if err := Validate(record); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load().Records
	if indexOf(cur, record.ID) >= 0 {
		return false, nil
	}
	next := make([]models.ImageRecord, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, record.Clone())
	s.publish("append", next)
	return true, nil
}

// RemoveByID 删除记录，不存在时为空操作，可重复调用
func (s *Store) RemoveByID(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load().Records
	i := indexOf(cur, id)
	if i < 0 {
		return false
	}
	next := make([]models.ImageRecord, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	s.publish("remove", next)
	return true
}

// PatchByID 合并局部字段，不存在时为空操作
func (s *Store) PatchByID(id int64, patch models.Patch) bool {
	if patch.Empty() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load().Records
	i := indexOf(cur, id)
	if i < 0 {
		return false
	}
	next := make([]models.ImageRecord, len(cur))
	copy(next, cur)
	next[i] = patch.ApplyTo(cur[i])
	s.publish("patch", next)
	return true
}

// Subscribe 订阅变更，每次写入后推送最新快照
// 通道容量为 1，消费慢时只保留最新一份
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish 必须在持有 mu 时调用
func (s *Store) publish(op string, records []models.ImageRecord) {
	snap := &Snapshot{
		Version: s.current.Load().Version + 1,
		Records: records,
	}
	s.current.Store(snap)
	metrics.ObserveMutation(op, len(records))
	s.notify(*snap)
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		// 丢弃旧的未消费快照
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Validate 写入缓存前的必填字段检查
func Validate(r models.ImageRecord) error {
	if r.ID < 0 || r.MediaType == "" || !r.Hydrated() {
		return ErrIncompleteRecord
	}
	return nil
}

func indexOf(records []models.ImageRecord, id int64) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
