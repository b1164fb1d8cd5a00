package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/registration/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const demographicCols = `COALESCE(state, ''), COALESCE(district, ''), COALESCE(city, ''),
	COALESCE(address_line1, ''), COALESCE(education, ''), COALESCE(family_status, ''), COALESCE(employment, '')`

const patientCols = `id, fhir_id, active, mrn, first_name, last_name, birth_date, gender, ` + demographicCols + `,
	version_id, created_at, updated_at`

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE fhir_id = $1`, fhirID))
}

func (r *repoPG) GetDemographics(ctx context.Context, id uuid.UUID) (Demographics, error) {
	var d Demographics
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+demographicCols+` FROM patient WHERE id = $1`, id).
		Scan(&d.Region, &d.District, &d.City, &d.OtherAddress, &d.Education, &d.FamilyStatus, &d.Employment)
	if errors.Is(err, pgx.ErrNoRows) {
		return Demographics{}, ErrNotFound
	}
	if err != nil {
		return Demographics{}, fmt.Errorf("patient demographics: %w", err)
	}
	return d, nil
}

// UpdateDemographics overwrites every demographic column; empty fields are
// stored as NULL.
func (r *repoPG) UpdateDemographics(ctx context.Context, id uuid.UUID, d Demographics) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			state=NULLIF($2, ''), district=NULLIF($3, ''), city=NULLIF($4, ''), address_line1=NULLIF($5, ''),
			education=NULLIF($6, ''), family_status=NULLIF($7, ''), employment=NULLIF($8, ''),
			version_id = version_id + 1, updated_at=NOW()
		WHERE id = $1`,
		id, d.Region, d.District, d.City, d.OtherAddress, d.Education, d.FamilyStatus, d.Employment,
	)
	if err != nil {
		return fmt.Errorf("patient update demographics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	d := &p.Demographics
	err := row.Scan(
		&p.ID, &p.FHIRID, &p.Active, &p.MRN, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender,
		&d.Region, &d.District, &d.City, &d.OtherAddress, &d.Education, &d.FamilyStatus, &d.Employment,
		&p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
