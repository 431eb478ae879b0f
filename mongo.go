package sluice

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DialMongo returns a Dialer backed by the official MongoDB driver.
// opts are applied after the URI.
func DialMongo(opts ...*options.ClientOptions) Dialer {
	return func(_ context.Context, uri string) (Client, error) {
		all := make([]*options.ClientOptions, 0, len(opts)+1)
		all = append(all, options.Client().ApplyURI(uri))
		all = append(all, opts...)

		client, err := mongo.Connect(all...)
		if err != nil {
			return nil, err
		}
		return wrapMongoClient(client), nil
	}
}

// mongoClient adapts *mongo.Client to Client.
type mongoClient struct {
	client *mongo.Client
}

func wrapMongoClient(c *mongo.Client) *mongoClient {
	return &mongoClient{client: c}
}

func (c *mongoClient) Database(name string) Database {
	return &mongoDatabase{db: c.client.Database(name)}
}

func (c *mongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// mongoDatabase adapts *mongo.Database to Database.
type mongoDatabase struct {
	db *mongo.Database
}

func (d *mongoDatabase) Name() string {
	return d.db.Name()
}

func (d *mongoDatabase) Collection(name string) RawCollection {
	return &mongoCollection{coll: d.db.Collection(name)}
}

// mongoCollection adapts *mongo.Collection to RawCollection.
type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string {
	return c.coll.Name()
}

func (c *mongoCollection) Find(ctx context.Context, filter any, o FindOptions) (Cursor, error) {
	opts := options.Find()
	if o.Sort != nil {
		opts.SetSort(o.Sort)
	}
	if o.Projection != nil {
		opts.SetProjection(o.Projection)
	}
	if o.Skip != nil {
		opts.SetSkip(*o.Skip)
	}
	if o.Limit != nil {
		opts.SetLimit(*o.Limit)
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline []Document) (Cursor, error) {
	cur, err := c.coll.Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter any, o CountOptions) (int64, error) {
	opts := options.Count()
	if o.Skip != nil {
		opts.SetSkip(*o.Skip)
	}
	if o.Limit != nil {
		opts.SetLimit(*o.Limit)
	}
	return c.coll.CountDocuments(ctx, filter, opts)
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) (*WriteResult, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Acknowledged:  res.Acknowledged,
		AffectedCount: 1,
		InsertedIDs:   []any{res.InsertedID},
	}, nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []any) (*WriteResult, error) {
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Acknowledged:  res.Acknowledged,
		AffectedCount: int64(len(res.InsertedIDs)),
		InsertedIDs:   res.InsertedIDs,
	}, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update any) (*WriteResult, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	return &WriteResult{
		Acknowledged:  res.Acknowledged,
		AffectedCount: res.ModifiedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter any) (*WriteResult, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Acknowledged: res.Acknowledged, AffectedCount: res.DeletedCount}, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter any) (*WriteResult, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Acknowledged: res.Acknowledged, AffectedCount: res.DeletedCount}, nil
}

// Ensure the adapters implement the driver interfaces.
var (
	_ Client        = (*mongoClient)(nil)
	_ Database      = (*mongoDatabase)(nil)
	_ RawCollection = (*mongoCollection)(nil)
)
