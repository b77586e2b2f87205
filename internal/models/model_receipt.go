package models

import "time"

// Receipt is written once per successfully paid invoice. ProcessorInvoiceID
// makes the write idempotent under webhook retries.
type Receipt struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	RowKey string `gorm:"column:row_key;type:varchar(512);not null;index" json:"row_key"`
	Email  string `gorm:"column:email;type:varchar(320);not null" json:"email"`

	ProcessorInvoiceID      string `gorm:"column:processor_invoice_id;type:varchar(128);not null;uniqueIndex" json:"processor_invoice_id"`
	ProcessorSubscriptionID string `gorm:"column:processor_subscription_id;type:varchar(128)" json:"processor_subscription_id"`

	// Number is the human-facing receipt number printed on the document.
	Number      string     `gorm:"column:number;type:varchar(64);not null" json:"number"`
	AmountPaid  int64      `gorm:"column:amount_paid;not null" json:"amount_paid"`
	Currency    string     `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	PeriodStart *time.Time `gorm:"column:period_start;default:null" json:"period_start"`
	PeriodEnd   *time.Time `gorm:"column:period_end;default:null" json:"period_end"`

	// Document is the generated plain-text receipt body mailed to the user.
	Document string    `gorm:"column:document;type:text" json:"document"`
	IssuedAt time.Time `gorm:"column:issued_at;not null" json:"issued_at"`

	CreatedAt time.Time `json:"created_at"`
}

func (Receipt) TableName() string { return "receipt" }
