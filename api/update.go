package api

type UpdateResponse struct {
	Status

	RunID     string   `json:"run_id"`
	Exercise  string   `json:"exercise,omitempty"`
	Score     int      `json:"score"`
	Failure   string   `json:"failure,omitempty"`
	Committed bool     `json:"committed"`
	Commit    string   `json:"commit,omitempty"`
	Attempts  int      `json:"attempts,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
