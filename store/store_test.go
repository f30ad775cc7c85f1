package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"proposal_wizard/generator"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "proposal:x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: err = %v", err)
	}

	first, err := s.Set(ctx, "proposal:x", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	second, err := s.Set(ctx, "proposal:x", []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if first.Version != 1 || second.Version != 2 {
		t.Fatalf("versions = %d, %d", first.Version, second.Version)
	}

	got, err := s.Get(ctx, "proposal:x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Value) != `{"a":2}` || got.Version != 2 {
		t.Fatalf("Get = %+v", got)
	}

	if err := s.Delete(ctx, "proposal:x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "proposal:x"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, "proposal:x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: err = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "wizard.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteSetQuery(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(3, "2025-03-01 10:30:00")
	mock.ExpectQuery("INSERT INTO entries").WithArgs("proposal:p1", []byte("{}")).WillReturnRows(rows)

	e, err := NewSQLite(db).Set(context.Background(), "proposal:p1", []byte("{}"))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	if e.Version != 3 || !e.UpdatedAt.Equal(want) {
		t.Fatalf("entry = %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT value, version, updated_at FROM entries").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"value", "version", "updated_at"}))

	if _, err := NewSQLite(db).Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeFiltersByPrefix(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, "proposal:p1")
	if err != nil {
		t.Fatal(err)
	}
	m.Set(ctx, "images:p1:screenshots", []byte("[]"))
	m.Set(ctx, "proposal:p1", []byte("{}"))
	m.Delete(ctx, "proposal:p1")

	select {
	case e := <-ch:
		if e.Key != "proposal:p1" || e.Version != 1 || e.Deleted {
			t.Fatalf("first notification = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	if e := <-ch; !e.Deleted {
		t.Fatalf("second notification = %+v", e)
	}

	cancel()
	for range ch {
	}
}

func TestEntryFromHash(t *testing.T) {
	t.Parallel()
	if _, err := entryFromHash("k", map[string]string{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty hash: err = %v", err)
	}
	e, err := entryFromHash("k", map[string]string{
		"value":      "hello",
		"version":    "4",
		"updated_at": "2025-03-01T10:30:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(e.Value) != "hello" || e.Version != 4 || e.UpdatedAt.IsZero() {
		t.Fatalf("entry = %+v", e)
	}
	if _, err := entryFromHash("k", map[string]string{"version": "x"}); err == nil {
		t.Fatal("expected error for bad version")
	}
}

func TestRedisKeys(t *testing.T) {
	t.Parallel()
	r := NewRedis(nil, "")
	if got := r.hashKey(ProposalKey("p1")); got != "proposal-wizard:kv:proposal:p1" {
		t.Fatalf("hashKey = %q", got)
	}
	if r.channel() != "proposal-wizard:changes" {
		t.Fatalf("channel = %q", r.channel())
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "etcd"}); err == nil {
		t.Fatal("expected error")
	}
	s, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("default driver = %T", s)
	}
}

func TestProposals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := NewMemory()
	p := NewProposals(kv)

	if _, ok, err := p.Proposal(ctx, "p1"); ok || err != nil {
		t.Fatalf("missing proposal: ok=%v err=%v", ok, err)
	}

	prop := generator.Proposal{
		ID:           "p1",
		Requirements: generator.Requirements{CompanyName: "Acme"},
		Sections: map[string]generator.Section{
			"next_steps": {Key: "next_steps", Content: "• Call", Status: generator.StatusComplete, Version: 1},
		},
	}
	if err := p.SaveProposal(ctx, prop); err != nil {
		t.Fatal(err)
	}
	got, ok, err := p.Proposal(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("Proposal: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got.Sections, prop.Sections) || !reflect.DeepEqual(got.Requirements, prop.Requirements) {
		t.Fatalf("round trip = %+v", got)
	}

	kv.Set(ctx, ProposalKey("bad"), []byte("{not json"))
	if _, ok, err := p.Proposal(ctx, "bad"); ok || err != nil {
		t.Fatalf("corrupt proposal: ok=%v err=%v", ok, err)
	}

	if err := p.SaveSelectedSections(ctx, "p1", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if keys, _ := p.SelectedSections(ctx, "p1"); !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("selected = %v", keys)
	}

	img := generator.Image{ID: "i1", SectionKey: "screenshots", Status: generator.ImagePending}
	if err := p.SaveImages(ctx, "p1", "screenshots", []generator.Image{img}); err != nil {
		t.Fatal(err)
	}
	all, err := p.AllImages(ctx, "p1", []string{"process_flow", "screenshots"})
	if err != nil || len(all) != 1 || all[0].ID != "i1" {
		t.Fatalf("AllImages = %v, %v", all, err)
	}

	if err := p.SaveImageData(ctx, "i1", ImageData{ContentType: "image/png", Data: []byte{1, 2}}); err != nil {
		t.Fatal(err)
	}
	d, ok, _ := p.ImageData(ctx, "i1")
	if !ok || d.ContentType != "image/png" || len(d.Data) != 2 {
		t.Fatalf("ImageData = %+v", d)
	}
	p.DeleteImageData(ctx, "i1")
	if _, ok, _ := p.ImageData(ctx, "i1"); ok {
		t.Fatal("image data still present after delete")
	}
}

func TestProposalsWatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProposals(NewMemory())

	updates, err := p.Watch(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	go p.SaveProposal(ctx, generator.Proposal{ID: "p1", Requirements: generator.Requirements{ClientName: "Globex"}})

	select {
	case got := <-updates:
		if got.Requirements.ClientName != "Globex" {
			t.Fatalf("update = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
}
