package db

import "time"

type TagModel struct {
	Identifier     string `gorm:"primaryKey;size:20"`
	Name           string `gorm:"not null"`
	Batch          string
	Location       string
	SecretDigest   string `gorm:"size:64"`
	ScanCounter    int64  `gorm:"not null;default:0"`
	Active         bool   `gorm:"not null;default:true"`
	TrustedSource  bool   `gorm:"not null;default:false"`
	ManufacturedAt *time.Time
	ExpiresAt      *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

func (TagModel) TableName() string {
	return "tags"
}

type ScanEventModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	TagIdentifier string    `gorm:"size:20;index;not null"`
	Counter       int64     `gorm:"not null"`
	ScannedAt     time.Time `gorm:"index;not null"`
	Location      string
	SourceIP      string
	Client        string
}

func (ScanEventModel) TableName() string {
	return "scan_events"
}

type AuditEventModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	EventType   string `gorm:"index;not null"`
	TargetID    string `gorm:"index;not null"`
	Result      string `gorm:"not null"`
	ErrorCode   string
	PayloadJSON []byte    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}
