package api

type QuotaStatus struct {
	Group    string `json:"group"`
	Max      int    `json:"max"`
	Hours    int    `json:"hours"`
	Count    int    `json:"count"`
	Applies  bool   `json:"applies"`
	Skipped  bool   `json:"skipped,omitempty"`
	Exceeded bool   `json:"exceeded"`
}

type CheckResponse struct {
	Status

	RunID    string        `json:"run_id"`
	Exercise string        `json:"exercise,omitempty"`
	Exceeded bool          `json:"exceeded"`
	Quotas   []QuotaStatus `json:"quotas,omitempty"`
	Report   string        `json:"report,omitempty"`
}
