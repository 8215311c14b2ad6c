package store

import (
	"context"
	"fmt"

	"github.com/preupac/simulador/internal/model"
)

// ExportResults groups every stored result by student for export.
func (s *Store) ExportResults(ctx context.Context) ([]model.StudentReport, error) {
	results, err := s.ListResults(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.Username] = u.Name
	}

	var order []string
	byUser := make(map[string]*model.StudentReport)
	for _, r := range results {
		rep, ok := byUser[r.Username]
		if !ok {
			rep = &model.StudentReport{Username: r.Username, Name: names[r.Username]}
			byUser[r.Username] = rep
			order = append(order, r.Username)
		}
		rep.Results = append(rep.Results, r)
	}

	reports := make([]model.StudentReport, 0, len(order))
	for _, u := range order {
		rep := byUser[u]
		rep.Attempts = len(rep.Results)
		rep.AverageScore, rep.BestScore = Summarize(rep.Results)
		reports = append(reports, *rep)
	}
	return reports, nil
}

// Summarize returns the average and best score over graded results.
func Summarize(results []model.Result) (avg, best float64) {
	var n int
	var sum float64
	for _, r := range results {
		if !r.Graded {
			continue
		}
		n++
		sum += r.Score
		if r.Score > best {
			best = r.Score
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), best
}
