package importer

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
)

// ExportDay writes the day's active records and its referral view into a
// workbook at path: a "Pacientes" sheet and an "AI_REA" sheet. Returns the
// number of rows written.
func (im *Importer) ExportDay(ctx context.Context, date, path string) (int, error) {
	patients, err := im.repo.Fetch(ctx, repository.FetchQuery{
		Date:      date,
		Predicate: repository.PredicateActive,
	})
	if err != nil {
		return 0, err
	}
	referrals, err := im.repo.FetchReferrals(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(patients) == 0 && len(referrals) == 0 {
		return 0, fmt.Errorf("no records on %s", date)
	}

	wb := excelize.NewFile()
	defer wb.Close()

	if len(patients) > 0 {
		sheet := "Pacientes"
		if err := renameDefaultSheet(wb, sheet); err != nil {
			return 0, err
		}
		writeRow(wb, sheet, 1, "ID", "Paciente", "Demanda", "Profissional", "Entrou≈", "Saiu≈")
		for i, p := range patients {
			writeRow(wb, sheet, i+2, p.ID, p.PatientName, p.Demands, p.ReferenceProf,
				p.EnterInf, deref(p.LeftInf))
		}
	}
	if len(referrals) > 0 {
		sheet := "AI_REA"
		if len(patients) == 0 {
			if err := renameDefaultSheet(wb, sheet); err != nil {
				return 0, err
			}
		} else if _, err := wb.NewSheet(sheet); err != nil {
			return 0, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		writeRow(wb, sheet, 1, "ID", "Paciente", "Demanda", "Profissional",
			"Encaminhamento", "Entrou≈", "Saiu≈")
		for i, r := range referrals {
			writeRow(wb, sheet, i+2, r.ID, r.PatientName, r.Demands, r.ReferenceProf,
				r.Referral, r.EnterInf, deref(r.LeftInf))
		}
	}

	if err := wb.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	total := len(patients) + len(referrals)
	im.log.Info("day exported", zap.String("date", date),
		zap.String("path", path), zap.Int("rows", total))
	return total, nil
}

// ExportSearch writes advanced-search results into a single-sheet workbook.
func (im *Importer) ExportSearch(results []repository.SearchRow, path string) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := "Busca"
	if err := renameDefaultSheet(wb, sheet); err != nil {
		return err
	}
	writeRow(wb, sheet, 1, "Data", "Paciente", "Profissional",
		"Desjejum", "Almoço", "Lanche", "Janta", "Entrou", "Saiu")
	for i, r := range results {
		writeRow(wb, sheet, i+2, r.Date, r.PatientName, r.ReferenceProf,
			mark(r.Meals.Desjejum), mark(r.Meals.Lunch),
			mark(r.Meals.Snack), mark(r.Meals.Dinner),
			deref(r.EnterSys), deref(r.LeftSys))
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	im.log.Info("search exported", zap.String("path", path), zap.Int("rows", len(results)))
	return nil
}

func renameDefaultSheet(wb *excelize.File, name string) error {
	if err := wb.SetSheetName(wb.GetSheetName(0), name); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	return nil
}

func writeRow(wb *excelize.File, sheet string, row int, values ...any) {
	cellRef, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return
	}
	_ = wb.SetSheetRow(sheet, cellRef, &values)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mark(b bool) string {
	if b {
		return "X"
	}
	return ""
}
