package chat

import "time"

// AuditEvent records one privileged mutation for the audit log: who did what
// to whom, with what parameters, and how it ended.
type AuditEvent struct {
	Actor  string    `db:"actor" json:"actor"`
	Action string    `db:"action" json:"action"`
	Target string    `db:"target" json:"target"`
	Params string    `db:"params" json:"params,omitempty"`
	Result string    `db:"result" json:"result"`
	At     time.Time `db:"at" json:"at"`
}
