package model

import "time"

// Event is the occasion tickets are sold for.  The core only reads
// events; they are created by the catalog loader or an external admin
// surface.
//
// Fields:
//
//	ID       – primary key (UUID string).
//	Name     – display name.
//	StartsAt – when the event begins (UTC).
type Event struct {
	ID        string    // events.id
	Name      string    // events.name
	StartsAt  time.Time // events.starts_at
	CreatedAt time.Time // events.created_at
}
