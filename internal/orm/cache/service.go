package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rowmodel/rowmodel/internal/orm/crud"
)

// Service is a crud.Service decorator that reads single records through a
// cache. Writes refresh or drop the affected key. Cache failures are logged
// and never fail the call.
type Service struct {
	inner     crud.Service
	cache     Cache
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// ServiceOption configures a caching Service
type ServiceOption func(*Service)

// WithTTL overrides the backend's default TTL for cached rows
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithLogger sets the logger used for cache backend failures
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// transactionalService is returned by Wrap when the wrapped service
// supports transactions, so the capability survives decoration
type transactionalService struct {
	*Service
	tx crud.Transactional
}

// Wrap decorates inner with a read-through cache. Keys are namespaced so
// several entities can share one backend. The result implements
// crud.Transactional whenever inner does.
func Wrap(inner crud.Service, c Cache, namespace string, opts ...ServiceOption) crud.Service {
	s := &Service{
		inner:     inner,
		cache:     c,
		namespace: namespace,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if tx, ok := inner.(crud.Transactional); ok {
		return &transactionalService{Service: s, tx: tx}
	}
	return s
}

// touchedKey marks a context running inside InTransaction; the value
// collects ids written during the transaction
type touchedKey struct{}

type touchedIDs struct {
	mu  sync.Mutex
	ids []interface{}
}

func (t *touchedIDs) add(id interface{}) {
	t.mu.Lock()
	t.ids = append(t.ids, id)
	t.mu.Unlock()
}

func touched(ctx context.Context) (*touchedIDs, bool) {
	t, ok := ctx.Value(touchedKey{}).(*touchedIDs)
	return t, ok
}

// InTransaction implements crud.Transactional. Inside the transaction the
// cache is bypassed; ids written during it are dropped from the cache once
// it ends, whatever the outcome.
func (s *transactionalService) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := touched(ctx); ok {
		return s.tx.InTransaction(ctx, fn)
	}

	t := &touchedIDs{}
	err := s.tx.InTransaction(context.WithValue(ctx, touchedKey{}, t), fn)
	for _, id := range t.ids {
		s.invalidate(ctx, id)
	}
	return err
}

func (s *Service) key(id interface{}) string {
	return fmt.Sprintf("%s:%v", s.namespace, id)
}

// FindFirst implements crud.Service
func (s *Service) FindFirst(ctx context.Context) (crud.Row, error) {
	return s.inner.FindFirst(ctx)
}

// FindMany implements crud.Service
func (s *Service) FindMany(ctx context.Context) ([]crud.Row, error) {
	return s.inner.FindMany(ctx)
}

// FindUnique implements crud.Service
func (s *Service) FindUnique(ctx context.Context, id interface{}) (crud.Row, error) {
	if _, inTx := touched(ctx); inTx {
		return s.inner.FindUnique(ctx, id)
	}

	data, err := s.cache.Get(ctx, s.key(id))
	switch {
	case err == nil:
		row, decodeErr := decodeRow(data)
		if decodeErr == nil {
			return row, nil
		}
		s.logger.Warn("discarding undecodable cached row",
			zap.String("entity", s.namespace), zap.Any("id", id), zap.Error(decodeErr))
	case !IsCacheMiss(err):
		s.logger.Warn("cache read failed",
			zap.String("entity", s.namespace), zap.Any("id", id), zap.Error(err))
	}

	row, err := s.inner.FindUnique(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, id, row)
	return row, nil
}

// Create implements crud.Service
func (s *Service) Create(ctx context.Context, data crud.Row) (crud.Row, error) {
	row, err := s.inner.Create(ctx, data)
	if err != nil {
		return nil, err
	}
	s.written(ctx, row["id"], row)
	return row, nil
}

// Update implements crud.Service
func (s *Service) Update(ctx context.Context, id interface{}, data crud.Row) (crud.Row, error) {
	row, err := s.inner.Update(ctx, id, data)
	if err != nil {
		if crud.IsNotFound(err) {
			s.invalidate(ctx, id)
		}
		return nil, err
	}
	s.written(ctx, id, row)
	return row, nil
}

// Delete implements crud.Service
func (s *Service) Delete(ctx context.Context, id interface{}) (crud.Row, error) {
	row, err := s.inner.Delete(ctx, id)
	if err == nil || crud.IsNotFound(err) {
		s.written(ctx, id, nil)
	}
	return row, err
}

// written records a write: inside a transaction the key is dropped now and
// again at the end; otherwise the stored row replaces the cached one.
func (s *Service) written(ctx context.Context, id interface{}, row crud.Row) {
	if id == nil {
		return
	}
	if t, inTx := touched(ctx); inTx {
		t.add(id)
		s.invalidate(ctx, id)
		return
	}
	if row == nil {
		s.invalidate(ctx, id)
		return
	}
	s.store(ctx, id, row)
}

func (s *Service) store(ctx context.Context, id interface{}, row crud.Row) {
	data, err := json.Marshal(row)
	if err != nil {
		s.logger.Warn("row not cacheable",
			zap.String("entity", s.namespace), zap.Any("id", id), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, s.key(id), data, s.ttl); err != nil {
		s.logger.Warn("cache write failed",
			zap.String("entity", s.namespace), zap.Any("id", id), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, id interface{}) {
	if err := s.cache.Delete(ctx, s.key(id)); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String("entity", s.namespace), zap.Any("id", id), zap.Error(err))
	}
}

// decodeRow decodes a cached row. Integral numbers come back as int64 and
// the rest as float64; timestamps come back as RFC 3339 strings.
func decodeRow(data []byte) (crud.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var row crud.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	for k, v := range row {
		row[k] = normalizeNumbers(v)
	}
	return row, nil
}

func normalizeNumbers(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}
