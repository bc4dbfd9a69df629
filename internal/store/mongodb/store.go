package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/docdb"
	"github.com/loykin/docmigrate/internal/store/connector"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store keeps change records and the lock in two collections of a MongoDB
// database, by default the migrated database itself.
type Store struct {
	cfg    Config
	client *docdb.Client
	db     *mongo.Database
	logger *common.Logger
}

type changeDoc struct {
	Author     string    `bson:"author"`
	ChangeID   string    `bson:"changeId"`
	Order      string    `bson:"orderKey"`
	State      string    `bson:"state"`
	ExecutedAt time.Time `bson:"executedAt"`
}

type lockDoc struct {
	ID         string    `bson:"_id"`
	Owner      string    `bson:"owner"`
	AcquiredAt time.Time `bson:"acquiredAt"`
	ExpiresAt  time.Time `bson:"expiresAt"`
}

func NewStore(logger *common.Logger) *Store {
	return &Store{logger: common.OrDefault(logger)}
}

// NewFromDatabase returns a store bound to an already connected database.
// Close leaves the connection open.
func NewFromDatabase(db *mongo.Database, logger *common.Logger) *Store {
	return &Store{db: db, cfg: Config{Database: db.Name()}, logger: common.OrDefault(logger)}
}

func (s *Store) Load(config map[string]interface{}) error {
	cfg, err := decodeConfig(config)
	if err != nil {
		return fmt.Errorf("mongodb store config: %w", err)
	}
	s.cfg = cfg
	return nil
}

func (s *Store) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if s.cfg.Database == "" {
		return errors.New("mongodb store requires a database name")
	}
	client, err := docdb.Connect(ctx, s.cfg.URI, s.logger)
	if err != nil {
		return err
	}
	s.client = client
	s.db = client.Mongo().Database(s.cfg.Database)
	return nil
}

// Ensure creates the unique changelog index. The lock collection needs none
// because the lock lives under a fixed _id.
func (s *Store) Ensure(ctx context.Context, th connector.TableNames) error {
	_, err := s.db.Collection(th.Changelog).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "author", Value: 1}, {Key: "changeId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("author_changeId_unique"),
	})
	if err != nil {
		return fmt.Errorf("ensure changelog index on %s: %w", th.Changelog, err)
	}
	return nil
}

func (s *Store) HasRun(ctx context.Context, th connector.TableNames, key changeset.Key) (bool, error) {
	filter := bson.D{
		{Key: "author", Value: key.Author},
		{Key: "changeId", Value: key.ID},
		{Key: "state", Value: connector.StateSuccess},
	}
	err := s.db.Collection(th.Changelog).FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check changeset %s: %w", key, err)
	}
	return true, nil
}

// RecordSuccess upserts the record; an existing one is left untouched.
func (s *Store) RecordSuccess(ctx context.Context, th connector.TableNames, rec connector.ChangeRecord) error {
	filter := bson.D{{Key: "author", Value: rec.Key.Author}, {Key: "changeId", Value: rec.Key.ID}}
	update := bson.D{{Key: "$setOnInsert", Value: changeDoc{
		Author:     rec.Key.Author,
		ChangeID:   rec.Key.ID,
		Order:      rec.Order,
		State:      rec.State,
		ExecutedAt: rec.ExecutedAt.UTC(),
	}}}
	_, err := s.db.Collection(th.Changelog).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("record changeset %s: %w", rec.Key, err)
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, th connector.TableNames) ([]connector.ChangeRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "executedAt", Value: 1}, {Key: "author", Value: 1}, {Key: "changeId", Value: 1}})
	cur, err := s.db.Collection(th.Changelog).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list change records: %w", err)
	}
	var docs []changeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode change records: %w", err)
	}
	out := make([]connector.ChangeRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, connector.ChangeRecord{
			Key:        changeset.Key{Author: d.Author, ID: d.ChangeID},
			Order:      d.Order,
			State:      d.State,
			ExecutedAt: d.ExecutedAt.UTC(),
		})
	}
	return out, nil
}

// TryLock writes the lock document in one operation. Without takeover it is a
// plain insert; with takeover it is an upsert filtered on an expired lease, so
// a live lease makes the upsert collide on _id.
func (s *Store) TryLock(ctx context.Context, th connector.TableNames, owner string, now time.Time, ttl time.Duration, takeover bool) (bool, error) {
	coll := s.db.Collection(th.Lock)
	doc := lockDoc{ID: constants.LockID, Owner: owner, AcquiredAt: now.UTC(), ExpiresAt: now.Add(ttl).UTC()}
	if !takeover {
		_, err := coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("acquire lock: %w", err)
		}
		return true, nil
	}

	filter := bson.D{
		{Key: "_id", Value: constants.LockID},
		{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now.UTC()}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "owner", Value: doc.Owner},
		{Key: "acquiredAt", Value: doc.AcquiredAt},
		{Key: "expiresAt", Value: doc.ExpiresAt},
	}}}
	res, err := coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return res.MatchedCount == 1 || res.UpsertedCount == 1, nil
}

func (s *Store) RefreshLock(ctx context.Context, th connector.TableNames, owner string, now time.Time, ttl time.Duration) (bool, error) {
	filter := bson.D{{Key: "_id", Value: constants.LockID}, {Key: "owner", Value: owner}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "expiresAt", Value: now.Add(ttl).UTC()}}}}
	res, err := s.db.Collection(th.Lock).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) Unlock(ctx context.Context, th connector.TableNames, owner string) error {
	filter := bson.D{{Key: "_id", Value: constants.LockID}, {Key: "owner", Value: owner}}
	if _, err := s.db.Collection(th.Lock).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (s *Store) ForceUnlock(ctx context.Context, th connector.TableNames) error {
	if _, err := s.db.Collection(th.Lock).DeleteOne(ctx, bson.D{{Key: "_id", Value: constants.LockID}}); err != nil {
		return fmt.Errorf("force release lock: %w", err)
	}
	return nil
}

func (s *Store) ReadLock(ctx context.Context, th connector.TableNames) (*connector.LockRecord, error) {
	var d lockDoc
	err := s.db.Collection(th.Lock).FindOne(ctx, bson.D{{Key: "_id", Value: constants.LockID}}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	return &connector.LockRecord{Owner: d.Owner, AcquiredAt: d.AcquiredAt.UTC(), ExpiresAt: d.ExpiresAt.UTC()}, nil
}

// Close disconnects only a client this store dialled itself.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
