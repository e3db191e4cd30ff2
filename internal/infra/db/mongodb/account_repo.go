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

type accountRepo struct {
	accounts *mongo.Collection
	grants   *mongo.Collection
}

var _ repository.AccountRepository = (*accountRepo)(nil)

func NewAccountRepo(db *mongo.Database) repository.AccountRepository {
	return &accountRepo{
		accounts: db.Collection(collAccounts),
		grants:   db.Collection(collSubscriptions),
	}
}

// GrantRole is an upsert with $addToSet, so repeating it changes nothing.
func (r *accountRepo) GrantRole(ctx context.Context, tx repository.Tx, accountID, role string) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.accounts.UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{
			"$addToSet": bson.M{"roles": role},
			"$set":      bson.M{"updated_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}

// GrantSubscription inserts the grant once; later calls with the same ID are no-ops.
func (r *accountRepo) GrantSubscription(ctx context.Context, tx repository.Tx, g *model.SubscriptionGrant) error {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.grants.UpdateOne(ctx,
		bson.M{"_id": g.ID},
		bson.M{"$setOnInsert": toGrantDoc(g)},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return mapErr(err)
	}
	_, err = r.accounts.UpdateOne(ctx,
		bson.M{"_id": g.AccountID},
		bson.M{"$setOnInsert": bson.M{"roles": bson.A{}, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return mapErr(err)
	}
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, accountID string) (*model.Account, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d accountDoc
	if err := r.accounts.FindOne(ctx, bson.M{"_id": accountID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &model.Account{ID: d.ID, Roles: d.Roles, UpdatedAt: d.UpdatedAt}, nil
}

func (r *accountRepo) ListSubscriptions(ctx context.Context, tx repository.Tx, accountID string) ([]*model.SubscriptionGrant, error) {
	ctx, err := opCtx(ctx, tx)
	if err != nil {
		return nil, err
	}
	cursor, err := r.grants.Find(ctx, bson.M{"account_id": accountID},
		options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}}))
	if err != nil {
		return nil, mapErr(err)
	}
	defer cursor.Close(ctx)

	var docs []grantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapErr(err)
	}
	out := make([]*model.SubscriptionGrant, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}
