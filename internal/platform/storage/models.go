package storage

import "time"

// AgentState is a key-value row backing the sqlite session store driver.
// Credentials and the logout sentinel are both persisted through it.
type AgentState struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Key       string `gorm:"column:state_key;uniqueIndex;size:255;not null"`
	Value     string `gorm:"column:state_value;not null"`
	UpdatedAt time.Time
}

// TableName keeps the table name stable regardless of gorm pluralisation.
func (AgentState) TableName() string {
	return "agent_state"
}
