package lpn

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoMetaID = "meta"

// mongoMetaDoc is the BSON document schema for meta storage.
type mongoMetaDoc struct {
	ID        string       `bson:"_id"`
	Version   string       `bson:"version"`
	Meta      MetaDocument `bson:"meta"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

// MongoMetaStore implements MetaStore backed by a MongoDB collection.
// The caller owns the mongo.Client lifecycle.
type MongoMetaStore struct {
	Collection *mongo.Collection
}

// NewMongoMetaStore creates a MongoMetaStore from a *mongo.Collection.
func NewMongoMetaStore(collection *mongo.Collection) *MongoMetaStore {
	return &MongoMetaStore{Collection: collection}
}

func (s *MongoMetaStore) GetMeta(ctx context.Context) (*MetaRevision, error) {
	var doc mongoMetaDoc
	err := s.Collection.FindOne(ctx, bson.M{"_id": mongoMetaID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMetaNotFound
		}
		return nil, err
	}
	return &MetaRevision{Meta: doc.Meta, Version: doc.Version}, nil
}

func (s *MongoMetaStore) PutMetaIfMatch(ctx context.Context, meta MetaDocument, expectedVersion string) (string, error) {
	newVersion := uuid.New().String()
	doc := mongoMetaDoc{
		ID:        mongoMetaID,
		Version:   newVersion,
		Meta:      meta,
		UpdatedAt: time.Now().UTC(),
	}

	switch expectedVersion {
	case CreateOnlyVersion:
		// insert-only: reject if meta already exists
		if _, err := s.Collection.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return "", ErrBlobVersionMismatch
			}
			return "", err
		}
		return newVersion, nil
	case "":
		_, err := s.Collection.ReplaceOne(ctx, bson.M{"_id": mongoMetaID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return "", err
		}
		return newVersion, nil
	}

	res, err := s.Collection.ReplaceOne(ctx,
		bson.M{"_id": mongoMetaID, "version": expectedVersion},
		doc,
	)
	if err != nil {
		return "", err
	}
	if res.MatchedCount == 0 {
		return "", ErrBlobVersionMismatch
	}
	return newVersion, nil
}
