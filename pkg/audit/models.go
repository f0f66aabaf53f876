package audit

import "time"

// EventRecord is an immutable entry in the decision trail.
type EventRecord struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)" json:"id" yaml:"id"`
	Kind       string    `gorm:"column:kind;index:idx_audit_kind_time,priority:1;not null" json:"kind" yaml:"kind"`
	ProposalID string    `gorm:"column:proposal_id;index:idx_audit_proposal_time,priority:1" json:"proposal_id" yaml:"proposal_id"`
	Code       string    `gorm:"column:code;index" json:"code" yaml:"code"`
	Action     string    `gorm:"column:action;not null" json:"action" yaml:"action"`
	Outcome    string    `gorm:"column:outcome;not null" json:"outcome" yaml:"outcome"` // created, committed, already_committed, conflict, ...
	Actor      string    `gorm:"column:actor;index;not null" json:"actor" yaml:"actor"`
	Detail     string    `gorm:"column:detail" json:"detail,omitempty" yaml:"detail,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;index:idx_audit_kind_time,priority:2;index:idx_audit_proposal_time,priority:2" json:"created_at" yaml:"created_at"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "workflow_events" }
