package models

import "time"

// ContactPoint is a per-user address for one outbound channel: an email
// address, an E.164 phone number, a push device token or a chat id.
type ContactPoint struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	Channel   Channel   `json:"channel" bson:"channel"`
	Address   string    `json:"address" bson:"address"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ContactPointCreate is the input for registering or replacing a contact point.
type ContactPointCreate struct {
	UserID  string `json:"user_id" binding:"required"`
	Channel string `json:"channel" binding:"required"`
	Address string `json:"address" binding:"required"`
}
