package storage

import "time"

// Run kinds recorded in the ledger.
const (
	RunKindIngest  = "ingest"
	RunKindReindex = "reindex"
)

// Run statuses.
const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// IngestRun is one recorded pipeline execution: an export ingest or a
// reindex of the chunk log.
type IngestRun struct {
	ID                    int
	Kind                  string // "ingest" or "reindex"
	InputPath             string
	RawMessageCount       int
	ProcessedMessageCount int
	ChatCount             int
	ChunkCount            int
	RedactedEmails        int
	RedactedPhones        int
	RedactedTokens        int
	RedactedPasswords     int
	Status                string // "ok" or "failed"
	Error                 string
	CreatedAt             time.Time
}
