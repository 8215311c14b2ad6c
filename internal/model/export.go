package model

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	Spreadsheet string          `json:"spreadsheet"`
	Date        string          `json:"date"`
	Students    []StudentReport `json:"students"`
}

// StudentReport groups one student's ensayos for export.
type StudentReport struct {
	Username     string   `json:"usuario"`
	Name         string   `json:"nombre"`
	Attempts     int      `json:"attempts"`
	AverageScore float64  `json:"average_score"`
	BestScore    float64  `json:"best_score"`
	Results      []Result `json:"results"`
}
