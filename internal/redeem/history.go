package redeem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"qrticket/models"
)

// DefaultHistorySize is the number of recent scans kept.
const DefaultHistorySize = 10

// History keeps the most recent scans, newest first.
type History interface {
	Add(ctx context.Context, rec models.ScanRecord) error
	Recent(ctx context.Context, n int) ([]models.ScanRecord, error)
}

type MemoryHistory struct {
	mu      sync.Mutex
	size    int
	records []models.ScanRecord
}

func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &MemoryHistory{size: size}
}

func (h *MemoryHistory) Add(_ context.Context, rec models.ScanRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append([]models.ScanRecord{rec}, h.records...)
	if len(h.records) > h.size {
		h.records = h.records[:h.size]
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, n int) ([]models.ScanRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	return append([]models.ScanRecord(nil), h.records[:n]...), nil
}

// RedisHistory shares one capped list between stations.
type RedisHistory struct {
	client redis.Cmdable
	key    string
	size   int
}

func NewRedisHistory(client redis.Cmdable, key string, size int) *RedisHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &RedisHistory{client: client, key: key, size: size}
}

// HistoryKey is the list key for an event's shared scan history.
func HistoryKey(scope string) string {
	return fmt.Sprintf("scan:history:%s", scope)
}

func (h *RedisHistory) Add(ctx context.Context, rec models.ScanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, h.key, data)
		pipe.LTrim(ctx, h.key, 0, int64(h.size-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push scan history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, n int) ([]models.ScanRecord, error) {
	if n <= 0 || n > h.size {
		n = h.size
	}

	raw, err := h.client.LRange(ctx, h.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read scan history: %w", err)
	}

	records := make([]models.ScanRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.ScanRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
