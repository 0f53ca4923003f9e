package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"dc2kook/internal/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection 选项集合默认名称
const DefaultCollection = "options"

// optionDocument 每个配置项一个文档
type optionDocument struct {
	Key       string    `bson:"key"`
	Value     any       `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore 管理界面共享的外部配置存储
type MongoStore struct {
	collection *mongo.Collection

	mu      sync.Mutex
	pending map[string]any
}

// NewMongoStore 创建 MongoDB 配置存储
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return newMongoStore(db.Collection(collection))
}

func newMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{collection: coll, pending: make(map[string]any)}
}

// EnsureIndexes 确保 key 唯一索引存在
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("key_unique"),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create option key index: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (any, error) {
	s.mu.Lock()
	staged, ok := s.pending[key]
	s.mu.Unlock()
	if ok {
		return staged, nil
	}

	var doc optionDocument
	err := s.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get option %s: %w", key, err)
	}
	return fromBSON(doc.Value), nil
}

func (s *MongoStore) Set(_ context.Context, key string, value any) error {
	v, err := plain(value)
	if err != nil {
		return fmt.Errorf("option %s: %w", key, err)
	}

	s.mu.Lock()
	s.pending[key] = v
	s.mu.Unlock()
	return nil
}

// All 读取集合中全部配置项并叠加未保存的修改
func (s *MongoStore) All(ctx context.Context) (map[string]any, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []optionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}

	values := make(map[string]any, len(docs))
	for _, doc := range docs {
		if doc.Key == "" {
			continue
		}
		values[doc.Key] = fromBSON(doc.Value)
	}

	s.mu.Lock()
	for k, v := range s.pending {
		values[k] = v
	}
	s.mu.Unlock()

	return values, nil
}

// Save 以 upsert 批量写入暂存的修改
// 写入失败时暂存内容保留，下一次 Save 重试
func (s *MongoStore) Save(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]any)
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(keys))
	for _, k := range keys {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"key": k}).
			SetUpdate(bson.M{"$set": bson.M{"value": pending[k], "updated_at": now}}).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		s.mu.Lock()
		for k, v := range pending {
			if _, newer := s.pending[k]; !newer {
				s.pending[k] = v
			}
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to save options: %w", err)
	}

	logger.L().Debugf("Options saved to MongoDB: keys=%v", keys)
	return nil
}

// fromBSON 把驱动解码出的 BSON 类型转换为普通 map/slice
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = fromBSON(val)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time()
	default:
		return v
	}
}
