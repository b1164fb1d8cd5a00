package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/registration/internal/platform/db"
)

type repoPG struct {
	pool querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, fhir_id, status, patient_id, registration_number, visit_type, class_code,
	COALESCE(department, ''), period_start, extensions, version_id, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	if v.FHIRID == "" {
		v.FHIRID = v.ID.String()
	}
	exts, err := json.Marshal(v.Extensions)
	if err != nil {
		return fmt.Errorf("visit create: encode extensions: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_registration (
			id, fhir_id, status, patient_id, registration_number, visit_type, class_code,
			department, period_start, extensions
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),$9,$10)
		RETURNING version_id, created_at, updated_at`,
		v.ID, v.FHIRID, v.Status, v.PatientID, v.RegistrationNumber, v.VisitType, v.ClassCode,
		v.Department, v.PeriodStart, exts,
	).Scan(&v.VersionID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("visit create: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit_registration WHERE id = $1`, id))
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit_registration WHERE fhir_id = $1`, fhirID))
}

// Update rewrites the mutable columns. The registration number is never
// changed after creation.
func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	exts, err := json.Marshal(v.Extensions)
	if err != nil {
		return fmt.Errorf("visit update: encode extensions: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE visit_registration SET
			status=$2, visit_type=$3, class_code=$4, department=NULLIF($5, ''),
			period_start=$6, extensions=$7, version_id = version_id + 1, updated_at=NOW()
		WHERE id = $1
		RETURNING version_id, updated_at`,
		v.ID, v.Status, v.VisitType, v.ClassCode, v.Department, v.PeriodStart, exts,
	).Scan(&v.VersionID, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("visit update: %w", err)
	}
	return nil
}

func (r *repoPG) FindMostRecent(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `
		SELECT `+visitCols+` FROM visit_registration
		WHERE patient_id = $1
		ORDER BY period_start DESC, created_at DESC
		LIMIT 1`, patientID))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit_registration WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit_registration WHERE patient_id = $1 ORDER BY period_start DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	visits := []*Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		visits = append(visits, v)
	}
	return visits, total, rows.Err()
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var exts []byte
	err := row.Scan(&v.ID, &v.FHIRID, &v.Status, &v.PatientID, &v.RegistrationNumber, &v.VisitType, &v.ClassCode,
		&v.Department, &v.PeriodStart, &exts, &v.VersionID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(exts) > 0 {
		if err := json.Unmarshal(exts, &v.Extensions); err != nil {
			return nil, fmt.Errorf("visit %s: decode extensions: %w", v.ID, err)
		}
	}
	return &v, nil
}
