// Package store persists the room/participant metadata mirror described in
// spec.md §6: the server-side model (internal/v1/room, internal/v1/participant)
// is authoritative; these tables are a durable mirror used for crash recovery
// and the out-of-scope HTTP collaborators (room listing, stream listing).
package store

import "time"

// Room mirrors one row of the `rooms` table.
type Room struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	IsActive  bool
	HLSURL    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participant mirrors one row of the `participants` table. It tracks live
// state only; a row is deleted when its participant leaves, and CrashRecover
// truncates the table at startup. Nothing truncates it at shutdown.
type Participant struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string `gorm:"index"`
	SocketID  string
	IsHost    bool
	IsViewer  bool
	HasVideo  bool
	HasAudio  bool
	JoinedAt  time.Time
}
