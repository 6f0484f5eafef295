// Package importer moves records between the store and Excel workbooks.
package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
)

// Importer reads legacy workbooks into the store.
type Importer struct {
	repo repository.RecordsRepo
	log  *zap.Logger
}

// New wires an importer.
func New(repo repository.RecordsRepo, log *zap.Logger) *Importer {
	return &Importer{repo: repo, log: log}
}

// mealSheets maps a sheet name to the meal column it marks. The
// "pacientes" sheet marks no meal directly; rows entering during the 09h
// slot get the breakfast flag instead.
var mealSheets = map[string]string{
	"pacientes": "",
	"almoço":    "lunch",
	"lanche":    "snack",
	"janta":     "dinner",
}

// ImportWorkbook loads every recognized sheet of the workbook in a single
// transaction. Any malformed row or a cancelled context rolls the whole
// import back. Returns the number of rows applied.
func (im *Importer) ImportWorkbook(ctx context.Context, path string) (applied int, err error) {
	batch := uuid.NewString()
	log := im.log.With(zap.String("batch", batch), zap.String("path", path))

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	tx, err := im.repo.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, sheet := range wb.GetSheetList() {
		name := strings.ToLower(strings.TrimSpace(sheet))
		mealCol, isMeal := mealSheets[name]
		isAcolh := strings.HasPrefix(name, "acolh")
		if !isMeal && !isAcolh {
			continue
		}

		rows, rerr := wb.GetRows(sheet)
		if rerr != nil {
			err = fmt.Errorf("read sheet %s: %w", sheet, rerr)
			return 0, err
		}
		for i, row := range rows {
			if err = ctx.Err(); err != nil {
				return 0, fmt.Errorf("import cancelled: %w", err)
			}
			if blankRow(row) {
				continue
			}
			if isAcolh {
				err = im.applyReferralRow(ctx, tx, row)
			} else {
				err = im.applyPatientRow(ctx, tx, row, mealCol)
			}
			if err != nil {
				return 0, fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
			}
			applied++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	log.Info("workbook imported", zap.Int("rows", applied))
	return applied, nil
}

// applyPatientRow merges one row of the pacientes/meal sheets:
// (name, demands, professional, date, time, observations).
func (im *Importer) applyPatientRow(ctx context.Context, tx *sql.Tx, row []string, mealCol string) error {
	name, demands := cell(row, 0), cell(row, 1)
	prof, date := cell(row, 2), cell(row, 3)
	clock, obs := cell(row, 4), cell(row, 5)
	if name == "" || date == "" {
		return nil
	}

	id, err := im.repo.GetOrCreateTx(ctx, tx, name, date)
	if err != nil {
		return err
	}
	current, err := im.repo.DemandsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	merged := domain.MergeDemandSets(current, demands)

	sets := []string{"demands = $1", "reference_prof = $2", "observations = $3"}
	args := []any{merged, prof, obs}
	n := len(args)
	if mealCol != "" {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", mealCol, n))
		args = append(args, 1)
	} else if strings.HasPrefix(clock, "09") {
		n++
		sets = append(sets, fmt.Sprintf("desjejum = $%d", n))
		args = append(args, 1)
	}
	if clock != "" {
		sets = append(sets, fmt.Sprintf("enter_inf = $%d", n+1), fmt.Sprintf("enter_sys = $%d", n+2))
		args = append(args, clock, clock)
		n += 2
	}
	args = append(args, id)

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE records SET %s WHERE id = $%d", strings.Join(sets, ", "), n+1), args...)
	return err
}

// applyReferralRow merges one row of an acolh* sheet:
// (name, demands, referral, professional, date, time, observations).
func (im *Importer) applyReferralRow(ctx context.Context, tx *sql.Tx, row []string) error {
	name, demands, referral := cell(row, 0), cell(row, 1), cell(row, 2)
	prof, date := cell(row, 3), cell(row, 4)
	clock, obs := cell(row, 5), cell(row, 6)
	if name == "" || date == "" {
		return nil
	}

	id, err := im.repo.GetOrCreateTx(ctx, tx, name, date)
	if err != nil {
		return err
	}
	current, err := im.repo.DemandsTx(ctx, tx, id)
	if err != nil {
		return err
	}
	merged := domain.MergeDemandSets(current, demands)

	_, err = tx.ExecContext(ctx, `
		UPDATE records
		   SET demands = $1, encaminhamento = $2, reference_prof = $3,
		       observations = $4, enter_inf = $5
		 WHERE id = $6`,
		merged, referral, prof, obs, clock, id)
	return err
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
