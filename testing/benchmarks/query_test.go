package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/zoobzio/sluice"
	"github.com/zoobzio/sluice/internal/mockdb"
	sluicetesting "github.com/zoobzio/sluice/testing"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BenchRecord is the model used for benchmarks.
type BenchRecord struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Group string `bson:"group"`
	Value int    `bson:"value"`
}

// newBenchCollection returns a collection backed by the in-memory client,
// seeded with n records spread over ten groups.
func newBenchCollection(b *testing.B, n int) *sluice.Collection[BenchRecord] {
	b.Helper()
	client := mockdb.NewClient()
	session := sluice.NewSession(sluice.WithDialer(client.Dial))
	if err := session.Connect(context.Background(), "mongodb://bench", "bench"); err != nil {
		b.Fatalf("Connect failed: %v", err)
	}

	docs := make([]any, n)
	for i := 0; i < n; i++ {
		docs[i] = BenchRecord{
			ID:    fmt.Sprintf("r%04d", i),
			Name:  fmt.Sprintf("record-%d", i),
			Group: fmt.Sprintf("g%d", i%10),
			Value: i,
		}
	}
	if err := client.DB("bench").Coll("records").Seed(docs...); err != nil {
		b.Fatalf("Seed failed: %v", err)
	}

	coll, err := sluice.NewCollection[BenchRecord](session, "records")
	if err != nil {
		b.Fatalf("NewCollection failed: %v", err)
	}
	return coll
}

// countSignals counts completed materializations while a benchmark runs.
// The returned finish function reports how many terminal signals arrived per
// iteration and fails the benchmark when any are missing.
func countSignals(b *testing.B, terminal string) (finish func()) {
	b.Helper()
	counter := sluicetesting.NewEventCounter()
	stop := sluicetesting.CaptureSignals(counter.Handler(), sluice.MaterializeCompleted)
	return func() {
		b.StopTimer()
		stop(context.Background())
		if !counter.WaitForCount(int64(b.N), 5*time.Second) {
			b.Fatalf("expected %d completed signals, got %d", b.N, counter.Count())
		}
		b.ReportMetric(float64(counter.CountFor(terminal))/float64(b.N), "signals/op")
	}
}

// BenchmarkQuery_All measures materializing every matching document.
func BenchmarkQuery_All(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "group", Value: "g3"}})

	finish := countSignals(b, sluice.TerminalAll)
	defer finish()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = q.All(ctx)
	}
}

// BenchmarkQuery_First measures the bounded first-value terminal.
func BenchmarkQuery_First(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := coll.Query(nil).Sort(bson.D{{Key: "value", Value: -1}})

	finish := countSignals(b, sluice.TerminalFirst)
	defer finish()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _, _ = q.First(ctx)
	}
}

// BenchmarkQuery_One measures the exactly-one terminal.
func BenchmarkQuery_One(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "_id", Value: "r0042"}})

	finish := countSignals(b, sluice.TerminalOne)
	defer finish()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _, _ = q.One(ctx)
	}
}

// BenchmarkQuery_Count measures server-side counting.
func BenchmarkQuery_Count(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "value", Value: bson.D{{Key: "$gte", Value: 50}}}})

	finish := countSignals(b, sluice.TerminalCount)
	defer finish()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = q.Count(ctx)
	}
}

// BenchmarkQuery_Map measures a mapped query.
func BenchmarkQuery_Map(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := sluice.Map(coll.Query(nil).Limit(10), func(r BenchRecord) (string, error) {
		return r.Name, nil
	})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = q.All(ctx)
	}
}

// BenchmarkPipeline_Group measures a grouping aggregation.
func BenchmarkPipeline_Group(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	p := coll.Aggregate(
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$group"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$value"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = p.All(ctx)
	}
}

// BenchmarkPipeline_Count measures counting through an aggregation.
func BenchmarkPipeline_Count(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	p := coll.Aggregate(bson.D{{Key: "$match", Value: bson.D{{Key: "group", Value: "g1"}}}})

	finish := countSignals(b, sluice.TerminalCount)
	defer finish()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = p.Count(ctx)
	}
}

// BenchmarkFlatMapSingle measures composing a single source into a sequence.
func BenchmarkFlatMapSingle(b *testing.B) {
	ctx := context.Background()
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	src := sluice.FlatMapSingle(sluice.Just(items), func(xs []int) sluice.Source[int] {
		return sluice.FromSlice(xs)
	})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = sluice.Collect(ctx, src)
	}
}

// BenchmarkQuery_All_Parallel measures concurrent materialization.
func BenchmarkQuery_All_Parallel(b *testing.B) {
	coll := newBenchCollection(b, 100)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "group", Value: "g7"}})

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = q.All(ctx)
		}
	})
}
