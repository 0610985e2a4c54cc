package cache

import (
	"context"

	"github.com/BaSui01/personaflow/database"
	"github.com/BaSui01/personaflow/types"
)

// DBAdapter 把缓存条目写进存储门面的 KV 表, 和记忆共用同一个数据库.
type DBAdapter struct {
	db      database.Adapter
	agentID types.UUID
}

// NewDBAdapter 创建数据库后端.
func NewDBAdapter(db database.Adapter, agentID types.UUID) *DBAdapter {
	return &DBAdapter{db: db, agentID: agentID}
}

func (a *DBAdapter) Name() string { return "database" }

func (a *DBAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	return a.db.GetCache(ctx, a.agentID, key)
}

func (a *DBAdapter) Set(ctx context.Context, key, value string) error {
	return a.db.SetCache(ctx, a.agentID, key, value)
}

func (a *DBAdapter) Delete(ctx context.Context, key string) error {
	return a.db.DeleteCache(ctx, a.agentID, key)
}
