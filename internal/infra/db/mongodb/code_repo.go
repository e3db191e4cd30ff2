package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type codeRepo struct {
	collection *mongo.Collection
}

var _ repository.CodeRepository = (*codeRepo)(nil)

func NewCodeRepo(db *mongo.Database) repository.CodeRepository {
	return &codeRepo{collection: db.Collection(collCodes)}
}

func (r *codeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, toCodeDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return mapErr(err)
	}
	return nil
}

func (r *codeRepo) GetByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d codeDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": code}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return d.model(), nil
}

func (r *codeRepo) ListWhere(ctx context.Context, tx repository.Tx, f model.CodeFilter) ([]*model.Code, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	filter := bson.M{}
	if f.ActiveOnly {
		filter["active"] = true
	}
	if f.Class != "" {
		filter["class"] = string(f.Class)
	}
	if f.CreatedBy != "" {
		filter["created_by"] = f.CreatedBy
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var docs []codeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	out := make([]*model.Code, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

// ConditionalIncrement is a single-document guarded $inc: the filter carries the
// capacity predicate, so a zero match means exhausted, deactivated or gone.
func (r *codeRepo) ConditionalIncrement(ctx context.Context, tx repository.Tx, code string) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id":    code,
		"active": true,
		"$or": bson.A{
			bson.M{"max_uses": model.UnlimitedUses},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$current_uses", "$max_uses"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"current_uses": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, code)
	}
	return nil
}

func (r *codeRepo) SetActive(ctx context.Context, tx repository.Tx, code string, active bool) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{"$set": bson.M{"active": active, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *codeRepo) missOrConflict(ctx context.Context, code string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": code}, options.Count().SetLimit(1))
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}
