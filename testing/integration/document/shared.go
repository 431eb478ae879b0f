// Package document provides shared test infrastructure for sluice integration tests.
package document

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/sluice"
	sluicetesting "github.com/zoobzio/sluice/testing"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// TestProduct is the model used for integration tests.
type TestProduct struct {
	ID       string   `bson:"_id"`
	Name     string   `bson:"name"`
	Category string   `bson:"category"`
	Price    int      `bson:"price"`
	Tags     []string `bson:"tags"`
}

// TestContext holds shared test resources for a backend.
type TestContext struct {
	Session *sluice.Session
	Cleanup func() // optional cleanup function
}

// RunQueryTests runs the find-query test suite.
func RunQueryTests(t *testing.T, tc *TestContext) {
	t.Run("All", func(t *testing.T) { testQueryAll(t, tc) })
	t.Run("SortSkipLimit", func(t *testing.T) { testQuerySortSkipLimit(t, tc) })
	t.Run("First", func(t *testing.T) { testQueryFirst(t, tc) })
	t.Run("One", func(t *testing.T) { testQueryOne(t, tc) })
	t.Run("Count", func(t *testing.T) { testQueryCount(t, tc) })
	t.Run("Project", func(t *testing.T) { testQueryProject(t, tc) })
}

// RunPipelineTests runs the aggregation test suite.
func RunPipelineTests(t *testing.T, tc *TestContext) {
	t.Run("Group", func(t *testing.T) { testPipelineGroup(t, tc) })
	t.Run("FirstOne", func(t *testing.T) { testPipelineFirstOne(t, tc) })
	t.Run("Count", func(t *testing.T) { testPipelineCount(t, tc) })
}

// RunCollectionTests runs the collection convenience test suite.
func RunCollectionTests(t *testing.T, tc *TestContext) {
	t.Run("QueryByID", func(t *testing.T) { testQueryByID(t, tc) })
	t.Run("ExistsAndCountMatching", func(t *testing.T) { testExistsAndCountMatching(t, tc) })
}

// RunWriteTests runs the write test suite.
func RunWriteTests(t *testing.T, tc *TestContext) {
	t.Run("InsertAndUpdate", func(t *testing.T) { testInsertAndUpdate(t, tc) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, tc) })
}

// seeded returns a typed collection named after the running test, filled
// with six products over two categories.
func seeded(t *testing.T, tc *TestContext) *sluice.Collection[TestProduct] {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	coll, err := sluice.NewCollection[TestProduct](tc.Session, name)
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	ctx := context.Background()
	if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	docs := []*TestProduct{
		{ID: "p1", Name: "apple", Category: "fruit", Price: 3, Tags: []string{"red", "sweet"}},
		{ID: "p2", Name: "banana", Category: "fruit", Price: 1, Tags: []string{"yellow", "sweet"}},
		{ID: "p3", Name: "cherry", Category: "fruit", Price: 5, Tags: []string{"red"}},
		{ID: "p4", Name: "carrot", Category: "veg", Price: 2, Tags: []string{"orange"}},
		{ID: "p5", Name: "kale", Category: "veg", Price: 4, Tags: []string{"green"}},
		{ID: "p6", Name: "lemon", Category: "fruit", Price: 2, Tags: []string{"yellow"}},
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}
	return coll
}

// --- Query Tests ---

func testQueryAll(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()
	capture := sluicetesting.NewEventCapture()
	stop := sluicetesting.CaptureSignals(capture.Handler(), sluice.MaterializeCompleted)

	got, err := coll.Query(bson.D{{Key: "category", Value: "fruit"}}).All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected 4 fruit, got %d", len(got))
	}

	stop(ctx)
	if !capture.WaitForCount(1, time.Second) {
		t.Fatal("expected a completed materialization signal")
	}
	events := capture.EventsForCollection(coll.Name())
	if len(events) != 1 {
		t.Fatalf("expected 1 event for %s, got %d", coll.Name(), len(events))
	}
	e := events[0]
	if e.Terminal() != sluice.TerminalAll || e.Count() != 4 {
		t.Errorf("expected all/4, got %s/%d", e.Terminal(), e.Count())
	}
	if e.RecordType() != coll.RecordType() {
		t.Errorf("expected record type %q, got %q", coll.RecordType(), e.RecordType())
	}
	if e.Duration() <= 0 {
		t.Errorf("expected a positive duration, got %v", e.Duration())
	}

	none, err := coll.Query(bson.D{{Key: "category", Value: "meat"}}).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected an empty non-nil slice, got %v", none)
	}
}

func testQuerySortSkipLimit(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	got, err := coll.Query(nil).
		Sort(bson.D{{Key: "price", Value: 1}, {Key: "name", Value: 1}}).
		Skip(1).
		Limit(2).
		All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "carrot" || got[1].Name != "lemon" {
		t.Errorf("expected [carrot lemon], got %v", got)
	}
}

func testQueryFirst(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	got, ok, err := coll.Query(nil).Sort(bson.D{{Key: "price", Value: -1}}).First(ctx)
	if err != nil || !ok {
		t.Fatalf("First failed: ok=%v err=%v", ok, err)
	}
	if got.Name != "cherry" {
		t.Errorf("expected cherry, got %q", got.Name)
	}

	_, ok, err = coll.Query(bson.D{{Key: "name", Value: "durian"}}).First(ctx)
	if err != nil || ok {
		t.Errorf("expected no value, got ok=%v err=%v", ok, err)
	}
}

func testQueryOne(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	got, ok, err := coll.Query(bson.D{{Key: "name", Value: "kale"}}).One(ctx)
	if err != nil || !ok || got.ID != "p5" {
		t.Errorf("expected kale, got %v ok=%v err=%v", got, ok, err)
	}

	_, _, err = coll.Query(bson.D{{Key: "category", Value: "veg"}}).One(ctx)
	if !errors.Is(err, sluice.ErrMultipleResults) {
		t.Errorf("expected ErrMultipleResults, got %v", err)
	}

	_, ok, err = coll.Query(bson.D{{Key: "name", Value: "durian"}}).One(ctx)
	if err != nil || ok {
		t.Errorf("expected no value, got ok=%v err=%v", ok, err)
	}
}

func testQueryCount(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	n, err := coll.Query(bson.D{{Key: "price", Value: bson.D{{Key: "$gte", Value: 2}}}}).Count(ctx)
	if err != nil || n != 5 {
		t.Errorf("expected 5, got %d (%v)", n, err)
	}

	n, err = coll.Query(nil).Skip(2).Limit(3).Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("expected 3 within the window, got %d (%v)", n, err)
	}
}

func testQueryProject(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	got, err := coll.Query(bson.D{{Key: "_id", Value: "p1"}}).
		Project(bson.D{{Key: "name", Value: 1}}).
		All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "apple" || got[0].Category != "" {
		t.Errorf("expected projected apple without category, got %v", got)
	}
}

// --- Pipeline Tests ---

func tagStages() []sluice.Document {
	return []sluice.Document{
		{{Key: "$unwind", Value: "$tags"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tags"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

type tagCount struct {
	Tag string `bson:"_id"`
	N   int    `bson:"n"`
}

func testPipelineGroup(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	got, err := sluice.AggregateAs[tagCount](coll, tagStages()...).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 tags, got %d", len(got))
	}
	if got[0].Tag != "red" || got[0].N != 2 {
		t.Errorf("expected red:2 first, got %v", got[0])
	}
}

func testPipelineFirstOne(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()
	p := sluice.AggregateAs[tagCount](coll, tagStages()...)

	first, ok, err := p.First(ctx)
	if err != nil || !ok || first.Tag != "red" {
		t.Errorf("expected red, got %v ok=%v err=%v", first, ok, err)
	}

	_, _, err = p.One(ctx)
	if !errors.Is(err, sluice.ErrMultipleResults) {
		t.Errorf("expected ErrMultipleResults, got %v", err)
	}

	one, ok, err := p.Limit(1).One(ctx)
	if err != nil || !ok || one.Tag != "red" {
		t.Errorf("expected red, got %v ok=%v err=%v", one, ok, err)
	}
}

func testPipelineCount(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	n, err := sluice.AggregateAs[tagCount](coll, tagStages()...).Count(ctx)
	if err != nil || n != 5 {
		t.Errorf("expected 5, got %d (%v)", n, err)
	}

	n, err = coll.Aggregate(bson.D{{Key: "$match", Value: bson.D{{Key: "category", Value: "meat"}}}}).Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("expected 0, got %d (%v)", n, err)
	}
}

// --- Collection Tests ---

func testQueryByID(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	got, ok, err := coll.QueryByID(ctx, "p3")
	if err != nil || !ok || got.Name != "cherry" {
		t.Errorf("expected cherry, got %v ok=%v err=%v", got, ok, err)
	}

	_, ok, err = coll.QueryByID(ctx, "p99")
	if err != nil || ok {
		t.Errorf("expected no value, got ok=%v err=%v", ok, err)
	}
}

func testExistsAndCountMatching(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	ok, err := coll.Exists(ctx, bson.D{{Key: "tags", Value: "green"}})
	if err != nil || !ok {
		t.Errorf("expected a green product, got ok=%v err=%v", ok, err)
	}
	ok, err = coll.Exists(ctx, bson.D{{Key: "tags", Value: "blue"}})
	if err != nil || ok {
		t.Errorf("expected no blue product, got ok=%v err=%v", ok, err)
	}

	n, err := coll.CountMatching(ctx, bson.D{{Key: "category", Value: "veg"}})
	if err != nil || n != 2 {
		t.Errorf("expected 2, got %d (%v)", n, err)
	}
}

// --- Write Tests ---

func testInsertAndUpdate(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()
	capture := sluicetesting.NewEventCapture()
	stop := sluicetesting.CaptureSignals(capture.Handler(), sluice.WriteCompleted)
	defer func() {
		stop(ctx)
		var ops []string
		for _, e := range capture.EventsForCollection(coll.Name()) {
			ops = append(ops, e.Operation())
		}
		if strings.Join(ops, ",") != "insert_one,update_one" {
			t.Errorf("expected insert_one,update_one writes, got %v", ops)
		}
	}()

	res, err := coll.InsertOne(ctx, &TestProduct{ID: "p7", Name: "plum", Category: "fruit", Price: 6})
	if err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}
	if len(res.InsertedIDs) != 1 || res.InsertedIDs[0] != "p7" {
		t.Errorf("expected inserted id p7, got %v", res.InsertedIDs)
	}

	res, err = coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: "p7"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "price", Value: 7}}}},
	)
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	if res.AffectedCount != 1 {
		t.Errorf("expected 1 modified, got %d", res.AffectedCount)
	}

	got, ok, err := coll.QueryByID(ctx, "p7")
	if err != nil || !ok || got.Price != 7 {
		t.Errorf("expected plum at 7, got %v ok=%v err=%v", got, ok, err)
	}
}

func testDelete(t *testing.T, tc *TestContext) {
	coll := seeded(t, tc)
	ctx := context.Background()

	res, err := coll.DeleteOne(ctx, bson.D{{Key: "category", Value: "veg"}})
	if err != nil || res.AffectedCount != 1 {
		t.Errorf("expected 1 deleted, got %v (%v)", res, err)
	}

	res, err = coll.DeleteMany(ctx, bson.D{{Key: "category", Value: "fruit"}})
	if err != nil || res.AffectedCount != 4 {
		t.Errorf("expected 4 deleted, got %v (%v)", res, err)
	}

	n, err := coll.CountMatching(ctx, nil)
	if err != nil || n != 1 {
		t.Errorf("expected 1 remaining, got %d (%v)", n, err)
	}
}
