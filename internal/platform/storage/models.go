package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Voice is the metadata row behind a registered voice. Artifact bytes live
// in the artifact store; ArtifactRef is the pointer into it.
type Voice struct {
	VoiceID      string    `gorm:"primaryKey;column:voice_id"`
	Name         string    `gorm:"not null;default:''"`
	ConsentScope string    `gorm:"not null;default:'tts'"`
	Status       string    `gorm:"not null;default:'active'"`
	SourceKind   string    `gorm:"not null;default:'cloned'"`
	OwnerID      *string   `gorm:"index"`
	Faction      string    `gorm:"not null;default:''"`
	ArtifactRef  string    `gorm:"not null;default:''"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

// Job is a clone or narrate work item tracked through its state machine.
type Job struct {
	JobID       string `gorm:"primaryKey;column:job_id"`
	Kind        string `gorm:"not null"`
	State       string `gorm:"index;not null"`
	SubmittedBy string `gorm:"index;not null;default:''"`
	Payload     datatypes.JSON
	ResultRef   *string
	ErrorDetail *string
	Requeued    bool `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HeartbeatAt *time.Time
}
