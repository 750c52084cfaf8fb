package criteria

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. The schema lives in
// the migrations package.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed Store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// mapPostgresError classifies a driver error: unique violations and
// serialization failures are conflicts, foreign key violations mean the
// referenced procedure is gone, everything else is a dependency failure.
func mapPostgresError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &Error{Kind: ErrConflict, Op: op, Msg: "duplicate record", Err: err}
		case "40001", "40P01":
			return &Error{Kind: ErrConflict, Op: op, Msg: "concurrent transaction conflict", Err: err}
		case "23503":
			return &Error{Kind: ErrNotFound, Op: op, Msg: "referenced procedure not found", Err: err}
		}
	}
	return DependencyError(op, err)
}

const procedureColumns = `id, procedure_number, procedure_name, version, status, effective_date,
	notes, custom_parameters, revision, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcedure(row rowScanner) (*Procedure, error) {
	var (
		p         Procedure
		status    string
		effective sql.NullTime
		params    []byte
	)
	if err := row.Scan(&p.ID, &p.Number, &p.Name, &p.Version, &status, &effective,
		&p.Notes, &params, &p.Revision, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = ProcedureStatus(status)
	if effective.Valid {
		p.EffectiveDate = effective.Time.Format(DateLayout)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p.CustomParameters); err != nil {
			return nil, fmt.Errorf("failed to decode custom parameters of procedure %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func procedureParams(p *Procedure) ([]byte, any, error) {
	defs := p.CustomParameters
	if defs == nil {
		defs = []CustomParameterDefinition{}
	}
	params, err := json.Marshal(defs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode custom parameters: %w", err)
	}
	var effective any
	if p.EffectiveDate != "" {
		effective = p.EffectiveDate
	}
	return params, effective, nil
}

func (s *PostgresStore) GetProcedures(ctx context.Context) ([]*Procedure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+procedureColumns+`
		FROM procedures
		ORDER BY procedure_number ASC, version ASC
	`)
	if err != nil {
		return nil, mapPostgresError("GetProcedures", err)
	}
	defer rows.Close()

	var procs []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, DependencyError("GetProcedures", fmt.Errorf("failed to scan procedure: %w", err))
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("GetProcedures", err)
	}
	return procs, nil
}

func (s *PostgresStore) GetProcedure(ctx context.Context, id string) (*Procedure, error) {
	p, err := scanProcedure(s.db.QueryRowContext(ctx, `
		SELECT `+procedureColumns+`
		FROM procedures
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError("GetProcedure", "procedure", id)
	}
	if err != nil {
		return nil, mapPostgresError("GetProcedure", err)
	}
	return p, nil
}

func (s *PostgresStore) InsertProcedure(ctx context.Context, p *Procedure) error {
	params, effective, err := procedureParams(p)
	if err != nil {
		return ValidationError("InsertProcedure", "%v", err)
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO procedures (id, procedure_number, procedure_name, version, status,
			effective_date, notes, custom_parameters, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
		RETURNING revision, created_at, updated_at
	`, p.ID, p.Number, p.Name, p.Version, string(p.Status), effective, p.Notes, string(params), now,
	).Scan(&p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapPostgresError("InsertProcedure", err)
	}
	return nil
}

func (s *PostgresStore) PatchProcedure(ctx context.Context, p *Procedure, expectedRevision int64) error {
	params, effective, err := procedureParams(p)
	if err != nil {
		return ValidationError("PatchProcedure", "%v", err)
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE procedures
		SET procedure_name = $1, status = $2, effective_date = $3, notes = $4,
			custom_parameters = $5, revision = revision + 1, updated_at = $6
		WHERE id = $7 AND revision = $8
		RETURNING revision, created_at, updated_at
	`, p.Name, string(p.Status), effective, p.Notes, string(params), time.Now().UTC(), p.ID, expectedRevision,
	).Scan(&p.Revision, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "PatchProcedure", "procedures", "procedure", p.ID, expectedRevision)
	}
	if err != nil {
		return mapPostgresError("PatchProcedure", err)
	}
	return nil
}

func (s *PostgresStore) MaxProcedureVersion(ctx context.Context, number string) (int, error) {
	var highest int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM procedures WHERE procedure_number = $1
	`, number).Scan(&highest)
	if err != nil {
		return 0, mapPostgresError("MaxProcedureVersion", err)
	}
	return highest, nil
}

const ruleColumns = `id, procedure_id, structure_group, priority_id, defect_code_id, defect_type_id,
	jobpack_type, elevation_min, elevation_max, nominal_thickness, threshold_value, threshold_text,
	threshold_operator, custom_parameters, auto_flag, alert_message, evaluation_priority,
	rule_order, revision, created_at, updated_at`

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r                         Rule
		elevMin, elevMax, nominal sql.NullFloat64
		thresholdValue            sql.NullFloat64
		thresholdText             sql.NullString
		operator                  string
		params                    []byte
	)
	if err := row.Scan(&r.ID, &r.ProcedureID, &r.StructureGroup, &r.PriorityID, &r.DefectCodeID,
		&r.DefectTypeID, &r.JobpackType, &elevMin, &elevMax, &nominal, &thresholdValue,
		&thresholdText, &operator, &params, &r.AutoFlag, &r.AlertMessage, &r.EvaluationPriority,
		&r.RuleOrder, &r.Revision, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ElevationMin = nullFloat(elevMin)
	r.ElevationMax = nullFloat(elevMax)
	r.NominalThickness = nullFloat(nominal)
	r.ThresholdValue = nullFloat(thresholdValue)
	if thresholdText.Valid {
		r.ThresholdText = &thresholdText.String
	}
	r.ThresholdOperator = Operator(operator)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.CustomParameters); err != nil {
			return nil, fmt.Errorf("failed to decode custom parameters of rule %s: %w", r.ID, err)
		}
		if len(r.CustomParameters) == 0 {
			r.CustomParameters = nil
		}
	}
	return &r, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func ruleParams(r *Rule) ([]byte, error) {
	conds := r.CustomParameters
	if conds == nil {
		conds = map[string]ParameterCondition{}
	}
	return json.Marshal(conds)
}

func (s *PostgresStore) GetRules(ctx context.Context, procedureID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE procedure_id = $1
		ORDER BY evaluation_priority DESC, rule_order ASC
	`, procedureID)
	if err != nil {
		return nil, mapPostgresError("GetRules", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, DependencyError("GetRules", fmt.Errorf("failed to scan rule: %w", err))
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("GetRules", err)
	}

	// The query already orders; sorting again keeps tie-breaks identical to
	// the in-memory store.
	SortRules(rules)
	return rules, nil
}

func (s *PostgresStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError("GetRule", "rule", id)
	}
	if err != nil {
		return nil, mapPostgresError("GetRule", err)
	}
	return r, nil
}

func (s *PostgresStore) InsertRule(ctx context.Context, r *Rule) error {
	params, err := ruleParams(r)
	if err != nil {
		return ValidationError("InsertRule", "failed to encode custom parameters: %v", err)
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO rules (id, procedure_id, structure_group, priority_id, defect_code_id,
			defect_type_id, jobpack_type, elevation_min, elevation_max, nominal_thickness,
			threshold_value, threshold_text, threshold_operator, custom_parameters, auto_flag,
			alert_message, evaluation_priority, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, $18, $18)
		RETURNING rule_order, revision, created_at, updated_at
	`, r.ID, r.ProcedureID, r.StructureGroup, r.PriorityID, r.DefectCodeID, r.DefectTypeID,
		r.JobpackType, r.ElevationMin, r.ElevationMax, r.NominalThickness, r.ThresholdValue,
		r.ThresholdText, string(r.ThresholdOperator), string(params), r.AutoFlag, r.AlertMessage,
		r.EvaluationPriority, now,
	).Scan(&r.RuleOrder, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return mapPostgresError("InsertRule", err)
	}
	return nil
}

func (s *PostgresStore) PatchRule(ctx context.Context, r *Rule, expectedRevision int64) error {
	params, err := ruleParams(r)
	if err != nil {
		return ValidationError("PatchRule", "failed to encode custom parameters: %v", err)
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE rules
		SET structure_group = $1, priority_id = $2, defect_code_id = $3, defect_type_id = $4,
			jobpack_type = $5, elevation_min = $6, elevation_max = $7, nominal_thickness = $8,
			threshold_value = $9, threshold_text = $10, threshold_operator = $11,
			custom_parameters = $12, auto_flag = $13, alert_message = $14,
			evaluation_priority = $15, revision = revision + 1, updated_at = $16
		WHERE id = $17 AND revision = $18
		RETURNING procedure_id, rule_order, revision, created_at, updated_at
	`, r.StructureGroup, r.PriorityID, r.DefectCodeID, r.DefectTypeID, r.JobpackType,
		r.ElevationMin, r.ElevationMax, r.NominalThickness, r.ThresholdValue, r.ThresholdText,
		string(r.ThresholdOperator), string(params), r.AutoFlag, r.AlertMessage, r.EvaluationPriority,
		time.Now().UTC(), r.ID, expectedRevision,
	).Scan(&r.ProcedureID, &r.RuleOrder, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "PatchRule", "rules", "rule", r.ID, expectedRevision)
	}
	if err != nil {
		return mapPostgresError("PatchRule", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return mapPostgresError("DeleteRule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return DependencyError("DeleteRule", fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return NotFoundError("DeleteRule", "rule", id)
	}
	return nil
}

// missingOrConflict explains why a revision-guarded update touched no row.
func (s *PostgresStore) missingOrConflict(ctx context.Context, op, table, entity, id string, expectedRevision int64) error {
	var current int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM `+table+` WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundError(op, entity, id)
	}
	if err != nil {
		return mapPostgresError(op, err)
	}
	return ConflictError(op, "%s %s was modified concurrently (revision %d, expected %d)", entity, id, current, expectedRevision)
}
