package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
)

// RolloverOpenEnded carries open-ended (AN family) records of the previous
// day onto targetDate. Only active (non-departed) records are candidates;
// archived clones never roll over. The carried record keeps the meal
// flags, observations, referral and stay interval, gets the normalized
// demand set and fresh entry clocks. A patient who already has a record
// on the target date, whatever its state, is skipped. Returns the number
// of records created.
func (r *SQLRecordsRepo) RolloverOpenEnded(ctx context.Context, targetDate string) (_ int, err error) {
	prev, err := domain.PreviousDay(targetDate)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Candidates are drained into a slice first; interleaving inserts with
	// an open result set breaks on the postgres driver.
	type candidate struct {
		name, demands, prof, observations string
		referral, start, end              *string
		desjejum, lunch, snack, dinner    int
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT patient_name, COALESCE(demands, ''),
		       COALESCE(reference_prof, ''), COALESCE(observations, ''),
		       encaminhamento, start_time, end_time,
		       desjejum, lunch, snack, dinner
		  FROM records
		 WHERE date = $1 AND left_sys IS NULL AND archived_ai = 0`, prev)
	if err != nil {
		return 0, fmt.Errorf("scan previous day: %w", err)
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err = rows.Scan(&c.name, &c.demands, &c.prof, &c.observations,
			&c.referral, &c.start, &c.end,
			&c.desjejum, &c.lunch, &c.snack, &c.dinner); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan candidate: %w", err)
		}
		if domain.HasOpenEnded(c.demands) {
			candidates = append(candidates, c)
		}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	now := r.clock()
	created := 0
	for _, c := range candidates {
		// Any record on the target date blocks the carry, departed ones
		// included: a second run must never duplicate a patient.
		var existing int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM records
			 WHERE patient_name = $1 AND date = $2
			 LIMIT 1`, c.name, targetDate).Scan(&existing)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("check existing %s: %w", c.name, err)
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO records (
				patient_name, demands, reference_prof, date,
				enter_sys, enter_inf,
				observations, encaminhamento,
				desjejum, lunch, snack, dinner,
				start_time, end_time
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			c.name, domain.NormalizeForRollover(c.demands), c.prof, targetDate,
			now, now, c.observations, c.referral,
			c.desjejum, c.lunch, c.snack, c.dinner,
			c.start, c.end); err != nil {
			return 0, fmt.Errorf("roll over %s: %w", c.name, err)
		}
		created++
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}
