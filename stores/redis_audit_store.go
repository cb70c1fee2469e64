package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/abac"
)

// RedisAuditStore keeps recent decision logs in a capped Redis list per
// tenant (key: abac:audit:{tenantID}). It trades durability for write speed
// and is meant as a hot tail in front of a SQL archive, not a system of
// record.
type RedisAuditStore struct {
	client *redis.Client
	keyFmt string
	maxLen int64
}

func NewRedisAuditStore(client *redis.Client, maxLen int64) *RedisAuditStore {
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &RedisAuditStore{client: client, keyFmt: "abac:audit:%s", maxLen: maxLen}
}

func (r *RedisAuditStore) key(tenantID string) string {
	return fmt.Sprintf(r.keyFmt, tenantID)
}

func (r *RedisAuditStore) InsertLog(ctx context.Context, entry *abac.PolicyLog) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	k := r.key(entry.TenantID)
	if err := r.client.LPush(ctx, k, b).Err(); err != nil {
		return err
	}
	return r.client.LTrim(ctx, k, 0, r.maxLen-1).Err()
}

// ListLogs scans the tenant's list newest-first and filters client-side. The
// TenantID filter is required because entries are partitioned by tenant key.
func (r *RedisAuditStore) ListLogs(ctx context.Context, filter abac.AuditFilter) ([]*abac.PolicyLog, error) {
	if filter.TenantID == "" {
		return nil, fmt.Errorf("redis audit store: tenant id filter is required")
	}
	raw, err := r.client.LRange(ctx, r.key(filter.TenantID), 0, r.maxLen-1).Result()
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]*abac.PolicyLog, 0)
	for _, item := range raw {
		entry := &abac.PolicyLog{}
		if err := json.Unmarshal([]byte(item), entry); err != nil {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && entry.Timestamp.After(filter.End) {
			continue
		}
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
