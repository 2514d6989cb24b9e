package queue

// SyncJobMsg requests a full re-scan and edge reconciliation of a namespace.
type SyncJobMsg struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
}

// AblateJobMsg requests a cascade removal. The worker plans fresh at
// execution time; the plan a caller previewed is never shipped in the
// message.
type AblateJobMsg struct {
	Message   string   `json:"message"`
	Namespace string   `json:"namespace"`
	RootIDs   []string `json:"root_ids"`
	Cascade   bool     `json:"cascade"`
}

// RebuildJobMsg requests an atomic projection rebuild.
type RebuildJobMsg struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
}

// DedupeJobMsg requests a duplicate-detection pass.
type DedupeJobMsg struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
}

// TriageJobMsg requests a triage pass over the namespace's missing names.
type TriageJobMsg struct {
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
}

// EventMsg is the envelope published on the events exchange when a job
// completes.
type EventMsg struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}
