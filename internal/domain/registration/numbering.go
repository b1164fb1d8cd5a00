package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var numberPrefixes = map[VisitType]string{
	VisitAmbulatory: "A",
	VisitStationary: "S",
}

// FormatRegistrationNumber renders the n-th number of a series, for example
// A-2026-000042.
func FormatRegistrationNumber(vt VisitType, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%06d", numberPrefixes[vt], year, n)
}

func checkVisitType(vt VisitType) error {
	if _, ok := numberPrefixes[vt]; !ok {
		return fmt.Errorf("unknown visit type %q", vt)
	}
	return nil
}

// SequenceNumberGenerator draws numbers from one Postgres sequence per visit
// type. Numbers keep increasing across years.
type SequenceNumberGenerator struct {
	pool rowQuerier
	now  func() time.Time
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func NewSequenceNumberGenerator(pool *pgxpool.Pool) *SequenceNumberGenerator {
	return &SequenceNumberGenerator{pool: pool, now: time.Now}
}

var sequenceNames = map[VisitType]string{
	VisitAmbulatory: "registration_number_ambulatory_seq",
	VisitStationary: "registration_number_stationary_seq",
}

func (g *SequenceNumberGenerator) Next(ctx context.Context, vt VisitType) (string, error) {
	if err := checkVisitType(vt); err != nil {
		return "", err
	}
	var n int64
	if err := g.pool.QueryRow(ctx, `SELECT nextval($1::regclass)`, sequenceNames[vt]).Scan(&n); err != nil {
		return "", fmt.Errorf("next registration number: %w", err)
	}
	return FormatRegistrationNumber(vt, g.now().Year(), n), nil
}

// RedisNumberGenerator keeps one counter per visit type and year, so each
// year's series starts at 1.
type RedisNumberGenerator struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisNumberGenerator(client redis.UniversalClient) *RedisNumberGenerator {
	return &RedisNumberGenerator{client: client, now: time.Now}
}

func (g *RedisNumberGenerator) Next(ctx context.Context, vt VisitType) (string, error) {
	if err := checkVisitType(vt); err != nil {
		return "", err
	}
	year := g.now().Year()
	key := fmt.Sprintf("registration:number:%s:%d", vt, year)
	n, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("next registration number: %w", err)
	}
	return FormatRegistrationNumber(vt, year, n), nil
}
