// Package sqlitedb 提供基于 SQLite 的 Adapter 实现. 向量以 JSON 存储,
// 相似度在应用层计算; 单机规模下这比引入向量扩展简单得多.
package sqlitedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/types"
)

// ============================================================
// 📦 行模型
// ============================================================

type memoryRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Table     string `gorm:"column:table_name;primaryKey;size:32;index:idx_memories_scope"`
	AgentID   string `gorm:"size:36"`
	RoomID    string `gorm:"size:36;index:idx_memories_scope"`
	UserID    string `gorm:"size:36"`
	Content   string // JSON 序列化的 types.Content
	Embedding string // JSON 序列化的 []float64, 可为空
	IsUnique  bool
	CreatedAt time.Time
}

func (memoryRow) TableName() string { return "memories" }

type goalRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string
	RoomID     string `gorm:"size:36;index"`
	UserID     string `gorm:"size:36"`
	Objectives string // JSON
	Status     string `gorm:"size:16"`
	CreatedAt  time.Time
}

func (goalRow) TableName() string { return "goals" }

type accountRow struct {
	ID       string `gorm:"primaryKey;size:36"`
	Name     string
	Username string
	Email    string
	Details  string
}

func (accountRow) TableName() string { return "accounts" }

type roomRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
}

func (roomRow) TableName() string { return "rooms" }

type participantRow struct {
	UserID string `gorm:"primaryKey;size:36"`
	RoomID string `gorm:"primaryKey;size:36;index"`
}

func (participantRow) TableName() string { return "participants" }

type relationshipRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserA     string `gorm:"size:36;uniqueIndex:idx_rel_pair"`
	UserB     string `gorm:"size:36;uniqueIndex:idx_rel_pair"`
	Status    string
	CreatedAt time.Time
}

func (relationshipRow) TableName() string { return "relationships" }

type cacheRow struct {
	AgentID string `gorm:"primaryKey;size:36"`
	Key     string `gorm:"primaryKey;size:255"`
	Value   string
}

func (cacheRow) TableName() string { return "cache" }

// ============================================================
// 🗄️ 适配器
// ============================================================

// Store 是 SQLite 存储后端.
type Store struct {
	db *gorm.DB
}

var _ database.Adapter = (*Store)(nil)

// Open 打开(或创建)SQLite 数据库. path 传 ":memory:" 得到纯内存库.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Init 建表.
func (s *Store) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&memoryRow{}, &goalRow{}, &accountRow{}, &roomRow{},
		&participantRow{}, &relationshipRow{}, &cacheRow{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- 行与领域对象的转换 ----

func toMemoryRow(tableName string, m *types.Memory, unique bool) (*memoryRow, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal memory content: %w", err)
	}
	row := &memoryRow{
		ID:        m.ID.String(),
		Table:     tableName,
		AgentID:   m.AgentID.String(),
		RoomID:    m.RoomID.String(),
		UserID:    m.UserID.String(),
		Content:   string(content),
		IsUnique:  unique,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Embedding) > 0 {
		emb, err := json.Marshal(m.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		row.Embedding = string(emb)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return row, nil
}

func fromMemoryRow(row *memoryRow) (types.Memory, error) {
	var m types.Memory
	var err error
	if m.ID, err = types.ParseID(row.ID); err != nil {
		return m, err
	}
	if m.AgentID, err = types.ParseID(row.AgentID); err != nil {
		return m, err
	}
	if m.RoomID, err = types.ParseID(row.RoomID); err != nil {
		return m, err
	}
	if m.UserID, err = types.ParseID(row.UserID); err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(row.Content), &m.Content); err != nil {
		return m, fmt.Errorf("unmarshal memory content: %w", err)
	}
	if row.Embedding != "" {
		if err := json.Unmarshal([]byte(row.Embedding), &m.Embedding); err != nil {
			return m, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	m.Unique = row.IsUnique
	m.CreatedAt = row.CreatedAt
	return m, nil
}

// ---- 记忆 ----

func (s *Store) CreateMemory(ctx context.Context, tableName string, m *types.Memory, unique bool) error {
	row, err := toMemoryRow(tableName, m, unique)
	if err != nil {
		return err
	}
	// 精确一次: 主键冲突静默跳过
	result := s.db.WithContext(ctx).
		Where("id = ? AND table_name = ?", row.ID, row.Table).
		FirstOrCreate(row)
	return result.Error
}

func (s *Store) GetMemoryByID(ctx context.Context, tableName string, id types.UUID) (*types.Memory, error) {
	var row memoryRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND table_name = ?", id.String(), tableName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := fromMemoryRow(&row)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMemories(ctx context.Context, p database.GetMemoriesParams) ([]types.Memory, error) {
	q := s.db.WithContext(ctx).
		Where("table_name = ? AND room_id = ?", p.TableName, p.RoomID.String()).
		Order("created_at DESC")
	if p.Unique {
		q = q.Where("is_unique = ?", true)
	}
	if p.Start != nil {
		q = q.Where("created_at >= ?", *p.Start)
	}
	if p.End != nil {
		q = q.Where("created_at <= ?", *p.End)
	}
	if p.Count > 0 {
		q = q.Limit(p.Count)
	}

	var rows []memoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToMemories(rows)
}

func rowsToMemories(rows []memoryRow) ([]types.Memory, error) {
	out := make([]types.Memory, 0, len(rows))
	for i := range rows {
		m, err := fromMemoryRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) RemoveMemory(ctx context.Context, tableName string, id types.UUID) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND table_name = ?", id.String(), tableName).
		Delete(&memoryRow{}).Error
}

func (s *Store) RemoveAllMemories(ctx context.Context, tableName string, roomID types.UUID) error {
	return s.db.WithContext(ctx).
		Where("table_name = ? AND room_id = ?", tableName, roomID.String()).
		Delete(&memoryRow{}).Error
}

func (s *Store) CountMemories(ctx context.Context, tableName string, roomID types.UUID, unique bool) (int, error) {
	q := s.db.WithContext(ctx).Model(&memoryRow{}).
		Where("table_name = ? AND room_id = ?", tableName, roomID.String())
	if unique {
		q = q.Where("is_unique = ?", true)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Store) SearchMemoriesByEmbedding(ctx context.Context, p database.SearchMemoriesParams) ([]types.Memory, error) {
	if len(p.Embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "empty query embedding")
	}

	q := s.db.WithContext(ctx).
		Where("table_name = ? AND embedding != ''", p.TableName)
	if p.RoomID != (types.UUID{}) {
		q = q.Where("room_id = ?", p.RoomID.String())
	}
	if p.Unique {
		q = q.Where("is_unique = ?", true)
	}

	var rows []memoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	type scored struct {
		memory types.Memory
		score  float64
	}
	hits := make([]scored, 0, len(rows))
	for i := range rows {
		m, err := fromMemoryRow(&rows[i])
		if err != nil {
			return nil, err
		}
		sim := database.CosineSimilarity(p.Embedding, m.Embedding)
		if sim < p.MatchThreshold {
			continue
		}
		hits = append(hits, scored{memory: m, score: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if p.Count > 0 && len(hits) > p.Count {
		hits = hits[:p.Count]
	}

	out := make([]types.Memory, len(hits))
	for i, h := range hits {
		out[i] = h.memory
	}
	return out, nil
}

func (s *Store) GetCachedEmbeddings(ctx context.Context, tableName, content string) ([]float64, error) {
	var rows []memoryRow
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND embedding != ''", tableName).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		var c types.Content
		if err := json.Unmarshal([]byte(rows[i].Content), &c); err != nil {
			continue
		}
		if c.Text != content {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(rows[i].Embedding), &vec); err != nil {
			return nil, err
		}
		return vec, nil
	}
	return nil, nil
}

// ---- 目标 ----

func (s *Store) GetGoals(ctx context.Context, roomID types.UUID, userID *types.UUID, onlyInProgress bool, count int) ([]types.Goal, error) {
	q := s.db.WithContext(ctx).
		Where("room_id = ?", roomID.String()).
		Order("created_at DESC")
	if userID != nil {
		q = q.Where("user_id = ?", userID.String())
	}
	if onlyInProgress {
		q = q.Where("status = ?", string(types.GoalInProgress))
	}
	if count > 0 {
		q = q.Limit(count)
	}

	var rows []goalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Goal, 0, len(rows))
	for i := range rows {
		g, err := fromGoalRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func toGoalRow(g *types.Goal) (*goalRow, error) {
	objectives, err := json.Marshal(g.Objectives)
	if err != nil {
		return nil, fmt.Errorf("marshal objectives: %w", err)
	}
	row := &goalRow{
		ID:         g.ID.String(),
		Name:       g.Name,
		RoomID:     g.RoomID.String(),
		UserID:     g.UserID.String(),
		Objectives: string(objectives),
		Status:     string(g.Status),
		CreatedAt:  g.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return row, nil
}

func fromGoalRow(row *goalRow) (types.Goal, error) {
	var g types.Goal
	var err error
	if g.ID, err = types.ParseID(row.ID); err != nil {
		return g, err
	}
	if g.RoomID, err = types.ParseID(row.RoomID); err != nil {
		return g, err
	}
	if g.UserID, err = types.ParseID(row.UserID); err != nil {
		return g, err
	}
	if row.Objectives != "" {
		if err := json.Unmarshal([]byte(row.Objectives), &g.Objectives); err != nil {
			return g, fmt.Errorf("unmarshal objectives: %w", err)
		}
	}
	g.Name = row.Name
	g.Status = types.GoalStatus(row.Status)
	g.CreatedAt = row.CreatedAt
	return g, nil
}

func (s *Store) CreateGoal(ctx context.Context, g *types.Goal) error {
	row, err := toGoalRow(g)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) UpdateGoal(ctx context.Context, g *types.Goal) error {
	row, err := toGoalRow(g)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&goalRow{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"name":       row.Name,
			"objectives": row.Objectives,
			"status":     row.Status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("goal %s not found", g.ID)
	}
	return nil
}

func (s *Store) UpdateGoalStatus(ctx context.Context, id types.UUID, status types.GoalStatus) error {
	result := s.db.WithContext(ctx).Model(&goalRow{}).
		Where("id = ?", id.String()).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("goal %s not found", id)
	}
	return nil
}

func (s *Store) RemoveGoal(ctx context.Context, id types.UUID) error {
	return s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&goalRow{}).Error
}

func (s *Store) RemoveAllGoals(ctx context.Context, roomID types.UUID) error {
	return s.db.WithContext(ctx).Where("room_id = ?", roomID.String()).Delete(&goalRow{}).Error
}

// ---- 账户 / 房间 / 参与者 ----

func (s *Store) CreateAccount(ctx context.Context, a *types.Account) error {
	row := &accountRow{
		ID:       a.ID.String(),
		Name:     a.Name,
		Username: a.Username,
		Email:    a.Email,
		Details:  a.Details,
	}
	return s.db.WithContext(ctx).
		Where("id = ?", row.ID).
		FirstOrCreate(row).Error
}

func (s *Store) GetAccountByID(ctx context.Context, id types.UUID) (*types.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	accountID, err := types.ParseID(row.ID)
	if err != nil {
		return nil, err
	}
	return &types.Account{
		ID:       accountID,
		Name:     row.Name,
		Username: row.Username,
		Email:    row.Email,
		Details:  row.Details,
	}, nil
}

func (s *Store) CreateRoom(ctx context.Context, id types.UUID) (types.UUID, error) {
	if id == (types.UUID{}) {
		id = types.NewID()
	}
	row := &roomRow{ID: id.String(), CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).
		Where("id = ?", row.ID).
		FirstOrCreate(row).Error; err != nil {
		return types.UUID{}, err
	}
	return id, nil
}

func (s *Store) GetRoom(ctx context.Context, id types.UUID) (*types.Room, error) {
	var row roomRow
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roomID, err := types.ParseID(row.ID)
	if err != nil {
		return nil, err
	}
	return &types.Room{ID: roomID, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) RemoveRoom(ctx context.Context, id types.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id.String()).Delete(&participantRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id.String()).Delete(&roomRow{}).Error
	})
}

func (s *Store) AddParticipant(ctx context.Context, userID, roomID types.UUID) error {
	row := &participantRow{UserID: userID.String(), RoomID: roomID.String()}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", row.UserID, row.RoomID).
		FirstOrCreate(row).Error
}

func (s *Store) RemoveParticipant(ctx context.Context, userID, roomID types.UUID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND room_id = ?", userID.String(), roomID.String()).
		Delete(&participantRow{}).Error
}

func (s *Store) GetParticipantsForRoom(ctx context.Context, roomID types.UUID) ([]types.UUID, error) {
	var rows []participantRow
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID.String()).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.UUID, 0, len(rows))
	for i := range rows {
		id, err := types.ParseID(rows[i].UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) GetRoomsForParticipant(ctx context.Context, userID types.UUID) ([]types.UUID, error) {
	var rows []participantRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("room_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.UUID, 0, len(rows))
	for i := range rows {
		id, err := types.ParseID(rows[i].RoomID)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) GetActorDetails(ctx context.Context, roomID types.UUID) ([]types.Actor, error) {
	var rows []accountRow
	err := s.db.WithContext(ctx).
		Joins("JOIN participants ON participants.user_id = accounts.id").
		Where("participants.room_id = ?", roomID.String()).
		Order("accounts.name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Actor, 0, len(rows))
	for i := range rows {
		id, err := types.ParseID(rows[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Actor{
			ID:       id,
			Name:     rows[i].Name,
			Username: rows[i].Username,
			Details:  rows[i].Details,
		})
	}
	return out, nil
}

// ---- 关系 ----

func orderedPair(a, b types.UUID) (string, string) {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as, bs
}

func (s *Store) CreateRelationship(ctx context.Context, userA, userB types.UUID) error {
	as, bs := orderedPair(userA, userB)
	row := &relationshipRow{
		ID:        types.NewID().String(),
		UserA:     as,
		UserB:     bs,
		Status:    "FRIENDS",
		CreatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", as, bs).
		FirstOrCreate(row).Error
}

func (s *Store) GetRelationship(ctx context.Context, userA, userB types.UUID) (*types.Relationship, error) {
	as, bs := orderedPair(userA, userB)
	var row relationshipRow
	err := s.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", as, bs).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRelationshipRow(&row)
}

func fromRelationshipRow(row *relationshipRow) (*types.Relationship, error) {
	id, err := types.ParseID(row.ID)
	if err != nil {
		return nil, err
	}
	a, err := types.ParseID(row.UserA)
	if err != nil {
		return nil, err
	}
	b, err := types.ParseID(row.UserB)
	if err != nil {
		return nil, err
	}
	return &types.Relationship{
		ID:        id,
		UserA:     a,
		UserB:     b,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Store) GetRelationships(ctx context.Context, userID types.UUID) ([]types.Relationship, error) {
	var rows []relationshipRow
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID.String(), userID.String()).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Relationship, 0, len(rows))
	for i := range rows {
		r, err := fromRelationshipRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// ---- 通用 KV 缓存 ----

func (s *Store) GetCache(ctx context.Context, agentID types.UUID, key string) (string, bool, error) {
	var row cacheRow
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND key = ?", agentID.String(), key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *Store) SetCache(ctx context.Context, agentID types.UUID, key, value string) error {
	row := &cacheRow{AgentID: agentID.String(), Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

func (s *Store) DeleteCache(ctx context.Context, agentID types.UUID, key string) error {
	return s.db.WithContext(ctx).
		Where("agent_id = ? AND key = ?", agentID.String(), key).
		Delete(&cacheRow{}).Error
}
