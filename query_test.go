package sluice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zoobzio/capitan"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestQuery_BuildingIsLazy(t *testing.T) {
	coll, raw := products(t)

	q := coll.Query(bson.D{{Key: "category", Value: "fruit"}}).
		Sort(Document{{Key: "price", Value: 1}}).
		Skip(1).
		Limit(2).
		Project(Document{{Key: "name", Value: 1}})
	_ = Map(q, func(p product) (string, error) { return p.Name, nil })
	_ = q.Source()

	if calls := raw.Calls(); calls.Find != 0 || calls.Count != 0 {
		t.Errorf("expected no driver calls while building, got %+v", calls)
	}
}

func TestQuery_All(t *testing.T) {
	coll, _ := products(t)
	items, err := coll.Query(nil).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	want := []string{"apple", "banana", "cherry", "carrot", "kale", "lemon"}
	if !equalStrings(names(items), want) {
		t.Errorf("expected %v, got %v", want, names(items))
	}
}

func TestQuery_All_Empty(t *testing.T) {
	coll, _ := products(t)
	items, err := coll.Query(bson.D{{Key: "name", Value: "durian"}}).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", items)
	}
}

func TestQuery_Immutable(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()

	base := coll.Query(bson.D{{Key: "category", Value: "fruit"}})
	sorted := base.Sort(Document{{Key: "price", Value: -1}})
	limited := sorted.Limit(1)

	baseItems, err := base.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	sortedItems, err := sorted.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	limitedItems, err := limited.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	if !equalStrings(names(baseItems), []string{"apple", "banana", "cherry", "lemon"}) {
		t.Errorf("base changed by derivation: %v", names(baseItems))
	}
	if !equalStrings(names(sortedItems), []string{"cherry", "apple", "lemon", "banana"}) {
		t.Errorf("unexpected sorted order: %v", names(sortedItems))
	}
	if !equalStrings(names(limitedItems), []string{"cherry"}) {
		t.Errorf("unexpected limited result: %v", names(limitedItems))
	}
}

func TestQuery_LimitBoundsResults(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()
	for _, n := range []int64{1, 3, 6, 10} {
		items, err := coll.Query(nil).Limit(n).All(ctx)
		if err != nil {
			t.Fatalf("All failed: %v", err)
		}
		if int64(len(items)) > n {
			t.Errorf("limit %d: got %d items", n, len(items))
		}
	}
}

func TestQuery_SkipAndLimit(t *testing.T) {
	coll, _ := products(t)
	items, err := coll.Query(nil).Sort(Document{{Key: "name", Value: 1}}).Skip(2).Limit(2).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if !equalStrings(names(items), []string{"carrot", "cherry"}) {
		t.Errorf("expected [carrot cherry], got %v", names(items))
	}
}

func TestQuery_Project(t *testing.T) {
	coll, _ := products(t)
	items, err := coll.Query(bson.D{{Key: "_id", Value: "p1"}}).Project(Document{{Key: "name", Value: 1}}).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Name != "apple" || items[0].Price != 0 || items[0].Category != "" {
		t.Errorf("expected only name projected, got %+v", items[0])
	}
}

func TestQuery_First(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter any
		wantOK bool
		want   string
	}{
		{"none", bson.D{{Key: "name", Value: "durian"}}, false, ""},
		{"one", bson.D{{Key: "name", Value: "kale"}}, true, "kale"},
		{"many", bson.D{{Key: "category", Value: "fruit"}}, true, "apple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok, err := coll.Query(tt.filter).First(ctx)
			if err != nil {
				t.Fatalf("First failed: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if p.Name != tt.want {
				t.Errorf("expected %q, got %q", tt.want, p.Name)
			}
		})
	}
}

func TestQuery_First_RespectsSort(t *testing.T) {
	coll, _ := products(t)
	p, ok, err := coll.Query(nil).Sort(Document{{Key: "price", Value: -1}}).First(context.Background())
	if err != nil || !ok {
		t.Fatalf("First failed: ok=%v err=%v", ok, err)
	}
	if p.Name != "cherry" {
		t.Errorf("expected most expensive 'cherry', got %q", p.Name)
	}
}

func TestQuery_First_KeepsInvalidLimit(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "category", Value: "fruit"}}).Limit(-1)

	if _, err := q.All(ctx); err == nil {
		t.Fatal("expected All to fail on a negative limit")
	}
	_, ok, err := q.First(ctx)
	if err == nil || ok {
		t.Errorf("expected First to fail like All, got ok=%v err=%v", ok, err)
	}
}

func TestQuery_First_NarrowsLimit(t *testing.T) {
	coll, raw := products(t)
	p, ok, err := coll.Query(nil).Limit(5).First(context.Background())
	if err != nil || !ok || p.Name != "apple" {
		t.Fatalf("expected apple, got %+v ok=%v err=%v", p, ok, err)
	}
	if calls := raw.Calls(); calls.Find != 1 {
		t.Errorf("expected 1 find, got %d", calls.Find)
	}
}

func TestQuery_One(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()

	_, ok, err := coll.Query(bson.D{{Key: "name", Value: "durian"}}).One(ctx)
	if err != nil || ok {
		t.Errorf("none: expected no value and no error, got ok=%v err=%v", ok, err)
	}

	p, ok, err := coll.Query(bson.D{{Key: "name", Value: "kale"}}).One(ctx)
	if err != nil || !ok || p.ID != "p5" {
		t.Errorf("one: expected p5, got %+v ok=%v err=%v", p, ok, err)
	}

	p, ok, err = coll.Query(bson.D{{Key: "category", Value: "veg"}}).One(ctx)
	if !errors.Is(err, ErrMultipleResults) {
		t.Errorf("many: expected ErrMultipleResults, got %v", err)
	}
	if ok || p.ID != "" {
		t.Errorf("many: expected no value, got %+v", p)
	}
	if !strings.Contains(err.Error(), "more than one element") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestQuery_One_RespectsLimit(t *testing.T) {
	coll, _ := products(t)
	p, ok, err := coll.Query(bson.D{{Key: "category", Value: "fruit"}}).Limit(1).One(context.Background())
	if err != nil || !ok {
		t.Fatalf("One failed: ok=%v err=%v", ok, err)
	}
	if p.Name != "apple" {
		t.Errorf("expected 'apple', got %q", p.Name)
	}
}

func TestQuery_NoCaching(t *testing.T) {
	coll, raw := products(t)
	ctx := context.Background()
	q := coll.Query(bson.D{{Key: "category", Value: "veg"}})

	first, err := q.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if err := raw.Seed(product{ID: "p7", Name: "leek", Category: "veg"}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	second, err := q.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	if len(first) != 2 || len(second) != 3 {
		t.Errorf("expected 2 then 3 items, got %d then %d", len(first), len(second))
	}
	if raw.Calls().Find != 2 {
		t.Errorf("expected a find per terminal call, got %d", raw.Calls().Find)
	}
}

func TestQuery_Count(t *testing.T) {
	coll, raw := products(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    *Query[product]
		want int64
	}{
		{"all", coll.Query(nil), 6},
		{"filtered", coll.Query(bson.D{{Key: "tags", Value: "sweet"}}), 2},
		{"limited", coll.Query(nil).Limit(4), 4},
		{"skipped", coll.Query(nil).Skip(5), 1},
		{"skip past end", coll.Query(nil).Skip(10), 0},
		{"skip and limit", coll.Query(nil).Skip(2).Limit(3), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.q.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("expected %d, got %d", tt.want, n)
			}
		})
	}
	if raw.Calls().Find != 0 {
		t.Errorf("expected Count not to open cursors, got %d finds", raw.Calls().Find)
	}
}

func TestMap(t *testing.T) {
	coll, _ := products(t)
	ctx := context.Background()

	labels := Map(coll.Query(bson.D{{Key: "category", Value: "veg"}}), func(p product) (string, error) {
		return strings.ToUpper(p.Name), nil
	})
	got, err := labels.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if !equalStrings(got, []string{"CARROT", "KALE"}) {
		t.Errorf("expected [CARROT KALE], got %v", got)
	}

	first, ok, err := labels.Sort(Document{{Key: "name", Value: -1}}).First(ctx)
	if err != nil || !ok {
		t.Fatalf("First failed: ok=%v err=%v", ok, err)
	}
	if first != "KALE" {
		t.Errorf("expected directives to apply after Map, got %q", first)
	}
}

func TestMap_Error(t *testing.T) {
	coll, _ := products(t)
	boom := errors.New("bad element")
	q := Map(coll.Query(nil), func(p product) (int, error) {
		if p.Name == "cherry" {
			return 0, boom
		}
		return p.Price, nil
	})
	if _, err := q.All(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected mapping error, got %v", err)
	}
}

func TestQuery_DriverErrors(t *testing.T) {
	coll, raw := products(t)
	ctx := context.Background()
	boom := errors.New("driver down")

	raw.Config().SetFindErr(boom)
	if _, err := coll.Query(nil).All(ctx); !errors.Is(err, boom) {
		t.Errorf("All: expected driver error, got %v", err)
	}
	if _, _, err := coll.Query(nil).First(ctx); !errors.Is(err, boom) {
		t.Errorf("First: expected driver error, got %v", err)
	}
	if _, _, err := coll.Query(nil).One(ctx); !errors.Is(err, boom) {
		t.Errorf("One: expected driver error, got %v", err)
	}

	raw.Config().SetCountErr(boom)
	if _, err := coll.Query(nil).Count(ctx); !errors.Is(err, boom) {
		t.Errorf("Count: expected driver error, got %v", err)
	}
}

func TestQuery_DecodeError(t *testing.T) {
	coll, raw := products(t)
	if err := raw.Seed(bson.M{"_id": "bad", "name": "broken", "price": "free"}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	_, err := coll.Query(nil).All(context.Background())
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

type loaded struct {
	Name string `bson:"name"`
	seen bool
}

var errUnloadable = errors.New("unloadable")

func (l *loaded) AfterLoad(_ context.Context) error {
	if l.Name == "kale" {
		return errUnloadable
	}
	l.seen = true
	return nil
}

func TestQuery_AfterLoad(t *testing.T) {
	s, client := connectMock(t)
	seedProducts(t, client)
	coll, err := NewCollection[loaded](s, "products")
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	ctx := context.Background()

	items, err := coll.Query(bson.D{{Key: "category", Value: "fruit"}}).All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for _, it := range items {
		if !it.seen {
			t.Errorf("expected AfterLoad on %q", it.Name)
		}
	}

	if _, err := coll.Query(nil).All(ctx); !errors.Is(err, errUnloadable) {
		t.Errorf("expected AfterLoad error, got %v", err)
	}
}

func TestQuery_Source(t *testing.T) {
	coll, raw := products(t)
	ctx := context.Background()
	src := coll.Query(bson.D{{Key: "category", Value: "veg"}}).Source()

	var (
		got       []string
		completes int
	)
	obs := Observer[product]{
		OnValue:    func(p product) { got = append(got, p.Name) },
		OnError:    func(err error) { t.Errorf("unexpected error: %v", err) },
		OnComplete: func() { completes++ },
	}
	src.Attach(ctx, obs)
	src.Attach(ctx, obs)

	if !equalStrings(got, []string{"carrot", "kale", "carrot", "kale"}) {
		t.Errorf("expected two full passes, got %v", got)
	}
	if completes != 2 || raw.Calls().Find != 2 {
		t.Errorf("expected 2 completions and 2 finds, got %d and %d", completes, raw.Calls().Find)
	}
}

func TestQuery_EmitsSignals(t *testing.T) {
	coll, raw := products(t)
	ctx := context.Background()

	var (
		mu        sync.Mutex
		started   []string
		completed []string
		failed    []string
	)
	record := func(dst *[]string) capitan.EventCallback {
		return func(_ context.Context, e *capitan.Event) {
			if FieldCollection.ExtractFromFields(e.Fields()) != "products" {
				return
			}
			mu.Lock()
			*dst = append(*dst, FieldTerminal.ExtractFromFields(e.Fields()))
			mu.Unlock()
		}
	}
	l1 := capitan.Hook(MaterializeStarted, record(&started))
	l2 := capitan.Hook(MaterializeCompleted, record(&completed))
	l3 := capitan.Hook(MaterializeFailed, record(&failed))

	_, _ = coll.Query(nil).All(ctx)
	raw.Config().SetCountErr(errors.New("count failed"))
	_, _ = coll.Query(nil).Count(ctx)

	_ = l1.Drain(ctx)
	_ = l2.Drain(ctx)
	_ = l3.Drain(ctx)
	l1.Close()
	l2.Close()
	l3.Close()

	mu.Lock()
	defer mu.Unlock()
	if !containsString(started, TerminalAll) || !containsString(started, TerminalCount) {
		t.Errorf("expected started for all and count, got %v", started)
	}
	if !containsString(completed, TerminalAll) {
		t.Errorf("expected completed for all, got %v", completed)
	}
	if !containsString(failed, TerminalCount) {
		t.Errorf("expected failed for count, got %v", failed)
	}
}
