package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
)

// SQLRecordsRepo is the RecordsRepo implementation over the relational
// store. Every write runs in its own transaction and either commits fully
// or leaves the store untouched.
type SQLRecordsRepo struct {
	db *sql.DB

	// Now is the injectable time source; tests pin it.
	Now func() time.Time
}

// NewSQLRecordsRepo binds a repository to an open store handle.
func NewSQLRecordsRepo(db *sql.DB) *SQLRecordsRepo {
	return &SQLRecordsRepo{db: db, Now: time.Now}
}

var _ RecordsRepo = (*SQLRecordsRepo)(nil)

func (r *SQLRecordsRepo) clock() string { return r.Now().Format(domain.ClockLayout) }
func (r *SQLRecordsRepo) logTS() string { return r.Now().Format(domain.LogTSLayout) }

// BeginTx opens an explicit transaction for batch callers (importer).
func (r *SQLRecordsRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// Create inserts a full record. The field set must match the record schema
// exactly: missing and extra names are both rejected, each one listed.
func (r *SQLRecordsRepo) Create(ctx context.Context, fields map[string]any) error {
	var missing, extra []string
	for _, c := range domain.RecordColumns {
		if _, ok := fields[c]; !ok {
			missing = append(missing, c)
		}
	}
	for k := range fields {
		if !domain.IsRecordColumn(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	if len(missing) > 0 || len(extra) > 0 {
		msg := "invalid fields:"
		if len(missing) > 0 {
			msg += " missing " + strings.Join(missing, ", ")
		}
		if len(extra) > 0 {
			msg += "; extra " + strings.Join(extra, ", ")
		}
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	}

	cols := strings.Join(domain.RecordColumns, ", ")
	placeholders := make([]string, len(domain.RecordColumns))
	args := make([]any, len(domain.RecordColumns))
	for i, c := range domain.RecordColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[c]
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO records (%s) VALUES (%s)", cols, strings.Join(placeholders, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// UpdateMeals writes the four meal flags. When the stored flags already
// equal the requested ones nothing is written and no log entry appears;
// otherwise the update and exactly one meal_log entry commit together.
func (r *SQLRecordsRepo) UpdateMeals(ctx context.Context, id int64, flags domain.MealFlags) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var oldB, oldL, oldS, oldD int
	err = tx.QueryRowContext(ctx,
		`SELECT desjejum, lunch, snack, dinner FROM records WHERE id = $1`, id).
		Scan(&oldB, &oldL, &oldS, &oldD)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read meals: %w", err)
	}

	newB, newL, newS, newD := b2i(flags.Desjejum), b2i(flags.Lunch), b2i(flags.Snack), b2i(flags.Dinner)
	if oldB == newB && oldL == newL && oldS == newS && oldD == newD {
		_ = tx.Rollback()
		return nil
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE records SET desjejum = $1, lunch = $2, snack = $3, dinner = $4
		 WHERE id = $5`,
		newB, newL, newS, newD, id); err != nil {
		return fmt.Errorf("update meals: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO meal_log (
			record_id, ts,
			old_b, old_l, old_s, old_d,
			new_b, new_l, new_s, new_d
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, r.logTS(),
		oldB, oldL, oldS, oldD,
		newB, newL, newS, newD); err != nil {
		return fmt.Errorf("log meal change: %w", err)
	}
	return tx.Commit()
}

// UpdateDemands replaces the demand set, stay interval and referral of a
// record. Before applying it runs the archival clone policy: when every
// AI/REA token was removed, an archived statistics clone carrying just
// those tokens is spawned. A demand_log entry is written on every call,
// changed or not.
func (r *SQLRecordsRepo) UpdateDemands(ctx context.Context, id int64, demands string, start, end, referral *string) (err error) {
	if (start == nil) != (end == nil) {
		return fmt.Errorf("%w: start and end times must be provided together", ErrValidation)
	}
	if start != nil && (!domain.ValidClock(*start) || !domain.ValidClock(*end)) {
		return fmt.Errorf("%w: invalid time; use the HH:mm format", ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var oldDemands sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT demands FROM records WHERE id = $1`, id).Scan(&oldDemands)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read demands: %w", err)
	}

	oldReferrals := domain.ReferralTokens(oldDemands.String)
	newReferrals := domain.ReferralTokens(demands)
	if len(oldReferrals) > 0 && len(newReferrals) == 0 {
		// The referral portion was fully removed: keep it visible for the
		// statistics by cloning it into an archived record, meals zeroed.
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO records (
				patient_name, demands, reference_prof, date,
				enter_sys, enter_inf,
				observations, encaminhamento,
				desjejum, lunch, snack, dinner,
				start_time, end_time,
				archived_ai
			)
			SELECT patient_name, $1, reference_prof, date,
			       enter_sys, $2, observations, encaminhamento,
			       0, 0, 0, 0,
			       start_time, end_time,
			       1
			  FROM records WHERE id = $3`,
			strings.Join(oldReferrals, ", "), r.clock(), id); err != nil {
			return fmt.Errorf("clone referral record: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO demand_log (record_id, ts, old_demands, new_demands)
		VALUES ($1,$2,$3,$4)`,
		id, r.logTS(), oldDemands.String, demands); err != nil {
		return fmt.Errorf("log demand change: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE records
		   SET demands = $1, start_time = $2, end_time = $3, encaminhamento = $4
		 WHERE id = $5`,
		demands, start, end, referral, id); err != nil {
		return fmt.Errorf("update demands: %w", err)
	}
	return tx.Commit()
}

// Leave marks a record as departed. A record that already departed cannot
// depart again, and a departure clock earlier than the informal entry clock
// is rejected.
func (r *SQLRecordsRepo) Leave(ctx context.Context, id int64, leftSys, leftInf string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enterInf, alreadyLeft sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT enter_inf, left_sys FROM records WHERE id = $1`, id).
		Scan(&enterInf, &alreadyLeft)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read record: %w", err)
	}

	if alreadyLeft.Valid {
		return fmt.Errorf("%w: record already marked as departed", ErrInvalidState)
	}
	if domain.ValidClock(enterInf.String) && domain.ValidClock(leftInf) &&
		domain.ClockBefore(leftInf, enterInf.String) {
		return fmt.Errorf("%w: departure time cannot precede entry time", ErrValidation)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE records SET left_sys = $1, left_inf = $2 WHERE id = $3`,
		leftSys, leftInf, id); err != nil {
		return fmt.Errorf("update departure: %w", err)
	}
	return tx.Commit()
}

// Reactivate brings a departed record back: departure fields are cleared,
// fresh entry clocks are set and the archive flag is dropped. Reactivating
// a record that never departed is an invalid transition.
func (r *SQLRecordsRepo) Reactivate(ctx context.Context, id int64, enterSys, enterInf string) (_ int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var leftSys sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT left_sys FROM records WHERE id = $1`, id).Scan(&leftSys)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("read record: %w", err)
	}
	if !leftSys.Valid {
		return 0, fmt.Errorf("%w: record is already active; cannot reactivate twice", ErrInvalidState)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE records
		   SET enter_sys = $1, enter_inf = $2, left_sys = NULL, left_inf = NULL, archived_ai = 0
		 WHERE id = $3`,
		enterSys, enterInf, id); err != nil {
		return 0, fmt.Errorf("reactivate: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// HasEditLog reports whether any meal or demand change was ever logged for
// the record.
func (r *SQLRecordsRepo) HasEditLog(ctx context.Context, id int64) (bool, error) {
	for _, q := range []string{
		`SELECT 1 FROM meal_log WHERE record_id = $1 LIMIT 1`,
		`SELECT 1 FROM demand_log WHERE record_id = $1 LIMIT 1`,
	} {
		var one int
		err := r.db.QueryRowContext(ctx, q, id).Scan(&one)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, sql.ErrNoRows):
			continue
		default:
			return false, fmt.Errorf("check edit log: %w", err)
		}
	}
	return false, nil
}

// Counts aggregates the dashboard counters for one date over active,
// non-archived records.
func (r *SQLRecordsRepo) Counts(ctx context.Context, date string) (domain.DayCounts, error) {
	var c domain.DayCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(desjejum), 0), COALESCE(SUM(lunch), 0),
		       COALESCE(SUM(snack), 0), COALESCE(SUM(dinner), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN encaminhamento IS NOT NULL THEN 1 ELSE 0 END), 0)
		  FROM records
		 WHERE date = $1 AND left_sys IS NULL AND archived_ai = 0`, date).
		Scan(&c.Desjejum, &c.Lunch, &c.Snack, &c.Dinner, &c.Total, &c.Referrals)
	if err != nil {
		return domain.DayCounts{}, fmt.Errorf("counts for %s: %w", date, err)
	}
	return c, nil
}

// GetOrCreate finds the active, non-archived record for a name on a date,
// or inserts a fresh one stamped with the current clock. Used by the
// importer's row merge.
func (r *SQLRecordsRepo) GetOrCreate(ctx context.Context, name, date string) (_ int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	id, err := r.GetOrCreateTx(ctx, tx, name, date)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetOrCreateTx is GetOrCreate inside a caller-owned transaction.
func (r *SQLRecordsRepo) GetOrCreateTx(ctx context.Context, tx *sql.Tx, name, date string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM records
		 WHERE patient_name = $1 AND date = $2 AND left_sys IS NULL AND archived_ai = 0
		 LIMIT 1`, name, date).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup %s/%s: %w", name, date, err)
	}

	now := r.clock()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO records (patient_name, date, enter_sys, enter_inf)
		VALUES ($1,$2,$3,$4) RETURNING id`, name, date, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create %s/%s: %w", name, date, err)
	}
	return id, nil
}

// DemandsTx reads the current demand set inside a caller-owned transaction.
func (r *SQLRecordsRepo) DemandsTx(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var demands sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT demands FROM records WHERE id = $1`, id).Scan(&demands)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("read demands: %w", err)
	}
	return demands.String, nil
}

// RepairLegacyImports fixes rows written by old workbook imports: informal
// entry clocks shaped HH:mm are copied into the system field, and records
// that entered during the 09h slot get the breakfast flag.
func (r *SQLRecordsRepo) RepairLegacyImports(ctx context.Context) (timesFixed, breakfastsMarked int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE records
		   SET enter_sys = enter_inf
		 WHERE enter_inf LIKE '__:__'
		   AND (enter_sys IS NULL OR enter_sys <> enter_inf)`)
	if err != nil {
		return 0, 0, fmt.Errorf("repair entry times: %w", err)
	}
	timesFixed, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE records
		   SET desjejum = 1
		 WHERE desjejum = 0
		   AND enter_inf LIKE '09:%'`)
	if err != nil {
		return 0, 0, fmt.Errorf("repair breakfast flags: %w", err)
	}
	breakfastsMarked, _ = res.RowsAffected()

	return timesFixed, breakfastsMarked, tx.Commit()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
