package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryLogger is an in-memory audit sink for tests and DB-less runs.
type MemoryLogger struct {
	mu      sync.RWMutex
	records []*Record
	nextID  int64
}

// NewMemoryLogger creates an empty in-memory audit logger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{nextID: 1}
}

func (l *MemoryLogger) Log(ctx context.Context, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *rec
	cp.ID = l.nextID
	l.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if rec.Meta != nil {
		cp.Meta = make(map[string]any, len(rec.Meta))
		for k, v := range rec.Meta {
			cp.Meta[k] = v
		}
	}
	l.records = append(l.records, &cp)
	return nil
}

func (l *MemoryLogger) Query(ctx context.Context, target string, limit int) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Record
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if target != "" && rec.Target != target {
			continue
		}
		cp := *rec
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Len returns the number of records logged so far.
func (l *MemoryLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
