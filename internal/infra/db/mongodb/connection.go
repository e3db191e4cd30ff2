// Package mongodb implements the repository ports on MongoDB. Transactions need a
// replica set (a single-node replica set is enough for development).
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/ports/repository"
)

const (
	collCodes         = "codes"
	collRedemptions   = "redemptions"
	collAccounts      = "accounts"
	collSubscriptions = "subscription_grants"
)

// DB wraps the client and the selected database.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials MongoDB, pings it and makes sure the indexes exist.
func Connect(ctx context.Context, uri, dbName string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &DB{Client: client, Database: client.Database(dbName)}
	if err := db.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return db, nil
}

// CreateIndexes is idempotent.
func (d *DB) CreateIndexes(ctx context.Context) error {
	// One document per (code, account, seq): the ledger's guard against a single
	// account exceeding its per-code allowance under concurrency.
	_, err := d.Database.Collection(collRedemptions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}, {Key: "account_id", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("redemption_slot_unique"),
		},
		{
			Keys:    bson.D{{Key: "code", Value: 1}, {Key: "redeemed_at", Value: 1}},
			Options: options.Index().SetName("redemption_code_time"),
		},
	})
	if err != nil {
		return fmt.Errorf("redemptions indexes: %w", err)
	}

	_, err = d.Database.Collection(collCodes).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "active", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("code_active_created"),
	})
	if err != nil {
		return fmt.Errorf("codes index: %w", err)
	}

	_, err = d.Database.Collection(collSubscriptions).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "start_at", Value: 1}},
		Options: options.Index().SetName("grant_account_start"),
	})
	if err != nil {
		return fmt.Errorf("subscription grants index: %w", err)
	}
	return nil
}

func (d *DB) Disconnect(ctx context.Context) error { return d.Client.Disconnect(ctx) }

// TxManager runs fn inside a multi-document transaction. The mongo.SessionContext
// is handed to fn both as ctx and as the repository.Tx.
type TxManager struct {
	client *mongo.Client
}

var _ repository.TransactionManager = (*TxManager)(nil)

func NewTxManager(client *mongo.Client) *TxManager { return &TxManager{client: client} }

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return mapErr(err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, sc)
	})
	return mapErr(err)
}

// opCtx picks the context a driver call runs under.
func opCtx(ctx context.Context, tx repository.Tx) (context.Context, error) {
	if tx == nil {
		return ctx, nil
	}
	sc, ok := tx.(mongo.SessionContext)
	if !ok {
		return nil, domain.ErrInvalidExecContext
	}
	return sc, nil
}

// mapErr tags driver failures that are worth retrying. Domain sentinels pass through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	case errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError"):
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return err
}
