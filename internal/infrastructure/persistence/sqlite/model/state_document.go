package model

// StateDocument holds one whole JSON document (queue, ledger, worker marker).
type StateDocument struct {
	Key           string `gorm:"column:key;type:text;primaryKey"`
	Value         string `gorm:"column:value;type:text;not null"`
	SchemaVersion int    `gorm:"column:schema_version;not null;default:0"`
	UpdatedAt     string `gorm:"column:updated_at;type:text;not null"`
}

func (StateDocument) TableName() string {
	return "state_documents"
}
