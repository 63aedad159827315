// Package mongo provides a MongoDB implementation of store.Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/smsbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	threads    *mongo.Collection
	opts       *options
	connected  int32
	logger     *slog.Logger
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collections, and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	s.collection = s.db.Collection(s.opts.collection)
	s.threads = s.db.Collection(s.opts.threadCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	s.logger.Info("connected to MongoDB", "database", s.opts.database, "collection", s.opts.collection)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// ensureIndexes creates required indexes.
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "folder", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "address", Value: 1}, {Key: "protocol", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return err
	}

	// Unique address index makes thread get-or-create atomic.
	_, err := s.threads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: mongoopts.Index().SetUnique(true),
	})
	return err
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// GetOrCreateThread returns the thread for address, creating it on first use.
// Uses an upsert on the unique address index; a concurrent upsert that loses
// the race reports a duplicate key and is retried as a plain read.
func (s *Store) GetOrCreateThread(ctx context.Context, address string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if address == "" {
		return "", store.ErrEmptyAddress
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := bson.M{"address": address}
	update := bson.M{"$setOnInsert": bson.M{"address": address, "created_at": time.Now().UTC()}}
	opts := mongoopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mongoopts.After)

	var doc threadDoc
	err := s.threads.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.threads.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return "", fmt.Errorf("get or create thread: %w", err)
	}
	return doc.ID.Hex(), nil
}

// Insert stores a new message.
func (s *Store) Insert(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	threadID := data.ThreadID
	if threadID == "" {
		var err error
		if threadID, err = s.GetOrCreateThread(ctx, data.Address); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	doc := messageDoc{
		ID:               bson.NewObjectID(),
		ThreadID:         threadID,
		Address:          data.Address,
		Body:             data.Body,
		Protocol:         data.Protocol,
		Date:             data.Date.UTC(),
		Folder:           data.Folder,
		IsRead:           data.IsRead,
		ReplyPathPresent: data.ReplyPathPresent,
		ServiceCenter:    data.ServiceCenter,
		Subject:          data.Subject,
		ErrorCode:        data.ErrorCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if data.Date.IsZero() {
		doc.Date = now
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	// Round-trip through BSON precision so callers see what a read returns.
	doc.Date = doc.Date.Truncate(time.Millisecond)
	doc.CreatedAt = doc.CreatedAt.Truncate(time.Millisecond)
	doc.UpdatedAt = doc.UpdatedAt.Truncate(time.Millisecond)
	return docToMessage(&doc), nil
}

// Get retrieves a message by ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc messageDoc
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return docToMessage(&doc), nil
}

// Find retrieves a page of messages matching the filters.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	sortKey := "created_at"
	if opts.SortBy != "" {
		key, ok := store.MessageOrderingKey(opts.SortBy)
		if !ok {
			return nil, store.ErrFilterInvalid
		}
		sortKey = key
	}
	dir := -1
	if opts.SortOrder == store.SortAsc {
		dir = 1
	}

	filter, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	findOpts := mongoopts.Find().
		SetSort(bson.D{{Key: sortKey, Value: dir}, {Key: "created_at", Value: dir}, {Key: "_id", Value: dir}})
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit) + 1)
	}

	cursor, err := s.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	hasMore := opts.Limit > 0 && len(docs) > opts.Limit
	if hasMore {
		docs = docs[:opts.Limit]
	}
	messages := make([]store.Message, len(docs))
	for i := range docs {
		messages[i] = docToMessage(&docs[i])
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// Count returns the number of messages matching the filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	filter, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Update applies the update to every message matching the filters.
// Returns the matched count so unchanged-but-matching documents still count.
func (s *Store) Update(ctx context.Context, filters []store.Filter, update store.MessageUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}
	if err := update.Validate(); err != nil {
		return 0, err
	}
	filter, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.collection.UpdateMany(ctx, filter, bson.M{"$set": updateToSet(update, time.Now().UTC())})
	if err != nil {
		return 0, fmt.Errorf("update messages: %w", err)
	}
	return res.MatchedCount, nil
}

// Delete removes every message matching the filters.
func (s *Store) Delete(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}
	filter, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.DeletedCount, nil
}

// MoveToFolder moves a message with one conditional update on its current folder.
func (s *Store) MoveToFolder(ctx context.Context, id, folder string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrInvalidID
	}
	if !store.IsValidFolder(folder) {
		return store.ErrInvalidFolder
	}
	sources := store.AllowedSources(folder)
	if len(sources) == 0 {
		return store.ErrInvalidTransition
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "folder": bson.M{"$in": sources}},
		bson.M{"$set": bson.M{"folder": folder, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("move to folder: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("move to folder: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

// Stats returns aggregate statistics with a single aggregation.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	pipeline := bson.A{
		bson.M{"$group": bson.M{
			"_id":    "$folder",
			"total":  bson.M{"$sum": 1},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$ne": bson.A{"$is_read", true}}, 1, 0}}},
		}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Folder string `bson:"_id"`
		Total  int64  `bson:"total"`
		Unread int64  `bson:"unread"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	stats := &store.Stats{
		Folders: make(map[string]store.FolderCounts, len(groups)),
	}
	for _, g := range groups {
		stats.Total += g.Total
		stats.Unread += g.Unread
		stats.Folders[g.Folder] = store.FolderCounts{Total: g.Total, Unread: g.Unread}
	}
	return stats, nil
}
