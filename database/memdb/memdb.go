// Package memdb 提供纯内存的 Adapter 实现, 用于测试和无持久化需求的
// 部署. 所有表都是 map + 读写锁, 向量检索是线性扫描.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/types"
)

type memoryKey struct {
	table string
	id    types.UUID
}

type cacheKey struct {
	agentID types.UUID
	key     string
}

type relationKey struct {
	a, b types.UUID
}

// Store 是内存存储后端.
type Store struct {
	mu            sync.RWMutex
	memories      map[memoryKey]types.Memory
	goals         map[types.UUID]types.Goal
	accounts      map[types.UUID]types.Account
	rooms         map[types.UUID]types.Room
	participants  map[types.UUID]map[types.UUID]struct{} // roomID -> userIDs
	relationships map[relationKey]types.Relationship
	kv            map[cacheKey]string
}

// New 创建空的内存存储.
func New() *Store {
	return &Store{
		memories:      make(map[memoryKey]types.Memory),
		goals:         make(map[types.UUID]types.Goal),
		accounts:      make(map[types.UUID]types.Account),
		rooms:         make(map[types.UUID]types.Room),
		participants:  make(map[types.UUID]map[types.UUID]struct{}),
		relationships: make(map[relationKey]types.Relationship),
		kv:            make(map[cacheKey]string),
	}
}

var _ database.Adapter = (*Store)(nil)

func (s *Store) Init(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

// ---- 记忆 ----

func (s *Store) CreateMemory(ctx context.Context, tableName string, m *types.Memory, unique bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{table: tableName, id: m.ID}
	if _, exists := s.memories[k]; exists {
		// 精确一次: 相同 ID 的重复写入静默跳过
		return nil
	}
	stored := *m
	stored.Unique = unique
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.memories[k] = stored
	return nil
}

func (s *Store) GetMemoryByID(ctx context.Context, tableName string, id types.UUID) (*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[memoryKey{table: tableName, id: id}]
	if !ok {
		return nil, nil
	}
	out := m
	return &out, nil
}

func (s *Store) GetMemories(ctx context.Context, p database.GetMemoriesParams) ([]types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Memory, 0)
	for k, m := range s.memories {
		if k.table != p.TableName || m.RoomID != p.RoomID {
			continue
		}
		if p.Unique && !m.Unique {
			continue
		}
		if p.Start != nil && m.CreatedAt.Before(*p.Start) {
			continue
		}
		if p.End != nil && m.CreatedAt.After(*p.End) {
			continue
		}
		out = append(out, m)
	}
	// 新的在前
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if p.Count > 0 && len(out) > p.Count {
		out = out[:p.Count]
	}
	return out, nil
}

func (s *Store) RemoveMemory(ctx context.Context, tableName string, id types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, memoryKey{table: tableName, id: id})
	return nil
}

func (s *Store) RemoveAllMemories(ctx context.Context, tableName string, roomID types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, m := range s.memories {
		if k.table == tableName && m.RoomID == roomID {
			delete(s.memories, k)
		}
	}
	return nil
}

func (s *Store) CountMemories(ctx context.Context, tableName string, roomID types.UUID, unique bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for k, m := range s.memories {
		if k.table != tableName || m.RoomID != roomID {
			continue
		}
		if unique && !m.Unique {
			continue
		}
		count++
	}
	return count, nil
}

type scoredMemory struct {
	memory types.Memory
	score  float64
}

func (s *Store) SearchMemoriesByEmbedding(ctx context.Context, p database.SearchMemoriesParams) ([]types.Memory, error) {
	if len(p.Embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "empty query embedding")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]scoredMemory, 0)
	for k, m := range s.memories {
		if k.table != p.TableName {
			continue
		}
		if p.RoomID != (types.UUID{}) && m.RoomID != p.RoomID {
			continue
		}
		if p.Unique && !m.Unique {
			continue
		}
		sim := database.CosineSimilarity(p.Embedding, m.Embedding)
		if sim < p.MatchThreshold {
			continue
		}
		scored = append(scored, scoredMemory{memory: m, score: sim})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if p.Count > 0 && len(scored) > p.Count {
		scored = scored[:p.Count]
	}
	out := make([]types.Memory, len(scored))
	for i, sm := range scored {
		out[i] = sm.memory
	}
	return out, nil
}

func (s *Store) GetCachedEmbeddings(ctx context.Context, tableName, content string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, m := range s.memories {
		if k.table != tableName {
			continue
		}
		if m.Content.Text == content && len(m.Embedding) > 0 {
			out := make([]float64, len(m.Embedding))
			copy(out, m.Embedding)
			return out, nil
		}
	}
	return nil, nil
}

// ---- 目标 ----

func (s *Store) GetGoals(ctx context.Context, roomID types.UUID, userID *types.UUID, onlyInProgress bool, count int) ([]types.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Goal, 0)
	for _, g := range s.goals {
		if g.RoomID != roomID {
			continue
		}
		if userID != nil && g.UserID != *userID {
			continue
		}
		if onlyInProgress && g.Status != types.GoalInProgress {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (s *Store) CreateGoal(ctx context.Context, g *types.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *g
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.goals[g.ID] = stored
	return nil
}

func (s *Store) UpdateGoal(ctx context.Context, g *types.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		return fmt.Errorf("goal %s not found", g.ID)
	}
	s.goals[g.ID] = *g
	return nil
}

func (s *Store) UpdateGoalStatus(ctx context.Context, id types.UUID, status types.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return fmt.Errorf("goal %s not found", id)
	}
	g.Status = status
	s.goals[id] = g
	return nil
}

func (s *Store) RemoveGoal(ctx context.Context, id types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.goals, id)
	return nil
}

func (s *Store) RemoveAllGoals(ctx context.Context, roomID types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, g := range s.goals {
		if g.RoomID == roomID {
			delete(s.goals, id)
		}
	}
	return nil
}

// ---- 账户 / 房间 / 参与者 ----

func (s *Store) CreateAccount(ctx context.Context, a *types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[a.ID]; exists {
		return nil
	}
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id types.UUID) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	out := a
	return &out, nil
}

func (s *Store) CreateRoom(ctx context.Context, id types.UUID) (types.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == (types.UUID{}) {
		id = types.NewID()
	}
	if _, exists := s.rooms[id]; !exists {
		s.rooms[id] = types.Room{ID: id, CreatedAt: time.Now()}
	}
	return id, nil
}

func (s *Store) GetRoom(ctx context.Context, id types.UUID) (*types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *Store) RemoveRoom(ctx context.Context, id types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	delete(s.participants, id)
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, userID, roomID types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[roomID] == nil {
		s.participants[roomID] = make(map[types.UUID]struct{})
	}
	s.participants[roomID][userID] = struct{}{}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, userID, roomID types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.participants[roomID]; m != nil {
		delete(m, userID)
	}
	return nil
}

func (s *Store) GetParticipantsForRoom(ctx context.Context, roomID types.UUID) ([]types.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.UUID, 0, len(s.participants[roomID]))
	for id := range s.participants[roomID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *Store) GetRoomsForParticipant(ctx context.Context, userID types.UUID) ([]types.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.UUID, 0)
	for roomID, users := range s.participants {
		if _, ok := users[userID]; ok {
			out = append(out, roomID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *Store) GetActorDetails(ctx context.Context, roomID types.UUID) ([]types.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Actor, 0)
	for userID := range s.participants[roomID] {
		a, ok := s.accounts[userID]
		if !ok {
			continue
		}
		out = append(out, types.Actor{
			ID:       a.ID,
			Name:     a.Name,
			Username: a.Username,
			Details:  a.Details,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- 关系 ----

func normalizeRelation(a, b types.UUID) relationKey {
	if a.String() > b.String() {
		a, b = b, a
	}
	return relationKey{a: a, b: b}
}

func (s *Store) CreateRelationship(ctx context.Context, userA, userB types.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := normalizeRelation(userA, userB)
	if _, exists := s.relationships[k]; exists {
		return nil
	}
	s.relationships[k] = types.Relationship{
		ID:        types.NewID(),
		UserA:     k.a,
		UserB:     k.b,
		Status:    "FRIENDS",
		CreatedAt: time.Now(),
	}
	return nil
}

func (s *Store) GetRelationship(ctx context.Context, userA, userB types.UUID) (*types.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relationships[normalizeRelation(userA, userB)]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *Store) GetRelationships(ctx context.Context, userID types.UUID) ([]types.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Relationship, 0)
	for _, r := range s.relationships {
		if r.UserA == userID || r.UserB == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- 通用 KV 缓存 ----

func (s *Store) GetCache(ctx context.Context, agentID types.UUID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[cacheKey{agentID: agentID, key: key}]
	return v, ok, nil
}

func (s *Store) SetCache(ctx context.Context, agentID types.UUID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[cacheKey{agentID: agentID, key: key}] = value
	return nil
}

func (s *Store) DeleteCache(ctx context.Context, agentID types.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, cacheKey{agentID: agentID, key: key})
	return nil
}
