package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserRecord holds per-email profile fields. Writes are merge-upserts with
// last-write-wins semantics; there is no invariant beyond that.
type UserRecord struct {
	RowKey string `gorm:"column:row_key;type:varchar(512);primary_key" json:"row_key"`
	Email  string `gorm:"column:email;type:varchar(320);not null;uniqueIndex" json:"email"`

	Name     string `gorm:"column:name;type:varchar(256)" json:"name"`
	Facility string `gorm:"column:facility;type:varchar(256)" json:"facility"`

	MarketingConsent *bool      `gorm:"column:marketing_consent;default:null" json:"marketing_consent"`
	TermsAcceptedAt  *time.Time `gorm:"column:terms_accepted_at;default:null" json:"terms_accepted_at"`

	// CancelOTPToken is a signed token carrying the hash of the one-time code
	// mailed out by the cancellation-confirmation flow.
	CancelOTPToken    string     `gorm:"column:cancel_otp_token;type:text" json:"-"`
	CancelOTPIssuedAt *time.Time `gorm:"column:cancel_otp_issued_at;default:null" json:"-"`

	Extra datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserRecord) TableName() string { return "user_record" }
