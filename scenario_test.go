package sluice

import (
	"context"
	"sort"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// tagged seeds six documents whose categories span five distinct values.
func tagged(t *testing.T) *Collection[bson.M] {
	t.Helper()
	s, client := connectMock(t)
	err := client.DB("shop").Coll("tagged").Seed(
		bson.M{"name": "present", "categories": bson.A{"One", "Three"}},
		bson.M{"name": "b", "categories": bson.A{"Five", "Three"}},
		bson.M{"name": "c", "categories": bson.A{"One", "Five"}},
		bson.M{"name": "d", "categories": bson.A{"Two"}},
		bson.M{"name": "e", "categories": bson.A{"Four", "Two"}},
		bson.M{"name": "f", "categories": bson.A{"Three"}},
	)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	coll, err := NewCollection[bson.M](s, "tagged")
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	return coll
}

func TestScenario_CountMatchingArrayMember(t *testing.T) {
	coll := tagged(t)
	n, err := coll.CountMatching(context.Background(), bson.D{{Key: "categories", Value: "One"}})
	if err != nil {
		t.Fatalf("CountMatching failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestScenario_UnwindGroup(t *testing.T) {
	coll := tagged(t)
	got, err := coll.Aggregate(
		bson.D{{Key: "$unwind", Value: "$categories"}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$categories"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 groups, got %d", len(got))
	}

	keys := make([]string, 0, len(got))
	for _, g := range got {
		k, _ := g["_id"].(string)
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"Five", "Four", "One", "Three", "Two"}
	if !equalStrings(keys, want) {
		t.Errorf("expected groups %v, got %v", want, keys)
	}
}

func TestScenario_Exists(t *testing.T) {
	coll := tagged(t)
	ctx := context.Background()

	ok, err := coll.Exists(ctx, bson.D{{Key: "name", Value: "absent"}})
	if err != nil || ok {
		t.Errorf("expected false, got %v (%v)", ok, err)
	}
	ok, err = coll.Exists(ctx, bson.D{{Key: "name", Value: "present"}})
	if err != nil || !ok {
		t.Errorf("expected true, got %v (%v)", ok, err)
	}
}
