package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
)

type redemptionRepo struct {
	collection *mongo.Collection
}

var _ repository.RedemptionRepository = (*redemptionRepo)(nil)

func NewRedemptionRepo(db *mongo.Database) repository.RedemptionRepository {
	return &redemptionRepo{collection: db.Collection(collRedemptions)}
}

func (r *redemptionRepo) Append(ctx context.Context, tx repository.Tx, rec *model.RedemptionRecord) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, toRedemptionDoc(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		return mapErr(err)
	}
	return nil
}

func (r *redemptionRepo) ListByAccountAndCode(ctx context.Context, tx repository.Tx, accountID, code string) ([]*model.RedemptionRecord, error) {
	return r.find(ctx, tx, bson.M{"code": code, "account_id": accountID})
}

func (r *redemptionRepo) ListByCode(ctx context.Context, tx repository.Tx, code string) ([]*model.RedemptionRecord, error) {
	return r.find(ctx, tx, bson.M{"code": code})
}

func (r *redemptionRepo) find(ctx context.Context, tx repository.Tx, filter bson.M) ([]*model.RedemptionRecord, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	cursor, err := r.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "redeemed_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var docs []redemptionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	out := make([]*model.RedemptionRecord, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}
