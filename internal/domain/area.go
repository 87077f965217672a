package domain

import "time"

// Area is a routing unit within an entity. LastAssignedIndex is the round-robin cursor.
type Area struct {
	ID                string
	Name              string
	EntityID          string
	LastAssignedIndex int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Procedure is an entity-configured request type.
type Procedure struct {
	ID              string
	Name            string
	EntityID        string
	AreaID          *string
	MaxResponseDays int
}

// Entity is the tenant organization owning areas, procedures and requests.
type Entity struct {
	ID     string
	Name   string
	ImgURL string
}
