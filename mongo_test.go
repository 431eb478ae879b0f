package sluice

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestMongoAdapters_ImplementInterfaces(_ *testing.T) {
	var _ Client = (*mongoClient)(nil)
	var _ Database = (*mongoDatabase)(nil)
	var _ RawCollection = (*mongoCollection)(nil)
}

func TestDialMongo_InvalidURI(t *testing.T) {
	_, err := DialMongo()(context.Background(), "not-a-mongodb-uri")
	if err == nil {
		t.Error("expected an error for an invalid uri")
	}
}

func TestSession_DefaultDialer(t *testing.T) {
	s := NewSession()
	err := s.Connect(context.Background(), "not-a-mongodb-uri", "shop")
	if !errors.Is(err, ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

// newLazyClient builds a driver client without contacting a server.
func newLazyClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestMongoAdapters_Names(t *testing.T) {
	c := wrapMongoClient(newLazyClient(t))
	db := c.Database("shop")
	if db.Name() != "shop" {
		t.Errorf("expected 'shop', got %q", db.Name())
	}
	if coll := db.Collection("products"); coll.Name() != "products" {
		t.Errorf("expected 'products', got %q", coll.Name())
	}
}

func TestNewSessionFromClient(t *testing.T) {
	s := NewSessionFromClient(newLazyClient(t), "shop")
	if !s.Connected() {
		t.Fatal("expected session to be connected")
	}
	coll, err := NewCollection[product](s, "products")
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	if coll.Name() != "products" {
		t.Errorf("expected 'products', got %q", coll.Name())
	}
}
