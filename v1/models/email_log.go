package models

// EmailLog is a durable record of a notification attempt
type EmailLog struct {
	ID        uint        `gorm:"primarykey;column:id" json:"id"`
	Recipient string      `gorm:"column:recipient;not null;index" json:"recipient"`
	Subject   string      `gorm:"column:subject;not null" json:"subject"`
	Body      string      `gorm:"column:body;type:text" json:"body"`
	Status    EmailStatus `gorm:"column:status;not null" json:"status"`
	Error     string      `gorm:"column:error" json:"error,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (EmailLog) TableName() string {
	return "email_logs"
}
