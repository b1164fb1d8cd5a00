package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func fixedYear(y int) func() time.Time {
	return func() time.Time { return time.Date(y, 6, 1, 12, 0, 0, 0, time.UTC) }
}

func TestFormatRegistrationNumber(t *testing.T) {
	tests := []struct {
		vt   VisitType
		year int
		n    int64
		want string
	}{
		{VisitAmbulatory, 2026, 42, "A-2026-000042"},
		{VisitStationary, 2026, 1, "S-2026-000001"},
		{VisitStationary, 2027, 1234567, "S-2027-1234567"},
	}
	for _, tt := range tests {
		if got := FormatRegistrationNumber(tt.vt, tt.year, tt.n); got != tt.want {
			t.Errorf("FormatRegistrationNumber(%s, %d, %d) = %q, want %q", tt.vt, tt.year, tt.n, got, tt.want)
		}
	}
}

func TestRedisNumberGenerator(t *testing.T) {
	mr, client := newTestRedis(t)
	g := NewRedisNumberGenerator(client)
	g.now = fixedYear(2026)
	ctx := context.Background()

	for _, want := range []string{"A-2026-000001", "A-2026-000002"} {
		got, err := g.Next(ctx, VisitAmbulatory)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next = %q, want %q", got, want)
		}
	}
	if got, _ := g.Next(ctx, VisitStationary); got != "S-2026-000001" {
		t.Errorf("stationary series shares the ambulatory counter: %q", got)
	}
	if v, err := mr.Get("registration:number:ambulatory:2026"); err != nil || v != "2" {
		t.Errorf("ambulatory counter = %q, %v; want 2", v, err)
	}

	g.now = fixedYear(2027)
	if got, _ := g.Next(ctx, VisitAmbulatory); got != "A-2027-000001" {
		t.Errorf("new year did not restart the series: %q", got)
	}
}

func TestRedisNumberGenerator_UnknownVisitType(t *testing.T) {
	mr, client := newTestRedis(t)
	g := NewRedisNumberGenerator(client)

	if _, err := g.Next(context.Background(), "day-care"); err == nil {
		t.Fatal("expected error for unknown visit type")
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("counter touched for unknown type: %v", keys)
	}
}

// stubRow scans a fixed value into the first destination.
type stubRow struct {
	n   int64
	err error
}

func (r stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.n
	return nil
}

type stubSequences struct {
	row  stubRow
	args []interface{}
}

func (s *stubSequences) QueryRow(_ context.Context, _ string, args ...interface{}) pgx.Row {
	s.args = append(s.args, args...)
	return s.row
}

func TestSequenceNumberGenerator(t *testing.T) {
	q := &stubSequences{row: stubRow{n: 42}}
	g := &SequenceNumberGenerator{pool: q, now: fixedYear(2026)}

	got, err := g.Next(context.Background(), VisitStationary)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != "S-2026-000042" {
		t.Errorf("Next = %q, want S-2026-000042", got)
	}
	if len(q.args) != 1 || q.args[0] != "registration_number_stationary_seq" {
		t.Errorf("unexpected sequence args: %v", q.args)
	}
}

func TestSequenceNumberGenerator_Errors(t *testing.T) {
	q := &stubSequences{}
	g := &SequenceNumberGenerator{pool: q, now: fixedYear(2026)}
	if _, err := g.Next(context.Background(), "day-care"); err == nil {
		t.Fatal("expected error for unknown visit type")
	}
	if len(q.args) != 0 {
		t.Error("sequence queried for unknown visit type")
	}

	dbErr := errors.New("sequence does not exist")
	q.row = stubRow{err: dbErr}
	if _, err := g.Next(context.Background(), VisitAmbulatory); !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped database error, got %v", err)
	}
}
