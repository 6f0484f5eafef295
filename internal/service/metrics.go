package service

import (
	"github.com/lawliet8886/Registro-de-pacientes/internal/domain"
	"github.com/lawliet8886/Registro-de-pacientes/internal/repository"
)

// Metrics are the aggregated dashboard statistics over a row set.
type Metrics struct {
	// Demands counts records per demand code. Archived clones contribute:
	// they exist to keep completed referrals countable.
	Demands map[string]int
	// Referrals is the histogram of referral categories, clones included.
	Referrals map[string]int
	// Patients and Meals cover real records only; clones are excluded so a
	// visit is never counted twice.
	Patients int
	Meals    domain.MealFlagsCount
}

// ComputeMetrics folds metric rows into the dashboard statistics. A record
// counts once per demand code, however many tokens of that code it carries.
func ComputeMetrics(rows []repository.MetricsRow) Metrics {
	m := Metrics{
		Demands:   map[string]int{},
		Referrals: map[string]int{},
	}
	for _, row := range rows {
		tokens := domain.ParseDemands(row.Demands)
		for _, code := range domain.DemandCodes {
			for _, t := range tokens {
				if t.CountsForCode(code) {
					m.Demands[code]++
					break
				}
			}
		}
		if row.Referral != nil && *row.Referral != "" {
			m.Referrals[*row.Referral]++
		}
		if row.Archived {
			continue
		}
		m.Patients++
		if row.Meals.Desjejum {
			m.Meals.Desjejum++
		}
		if row.Meals.Lunch {
			m.Meals.Lunch++
		}
		if row.Meals.Snack {
			m.Meals.Snack++
		}
		if row.Meals.Dinner {
			m.Meals.Dinner++
		}
	}
	return m
}
