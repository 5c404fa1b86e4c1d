package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type User struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	Role          string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecordFilter narrows a dataset listing. Zero values mean no filter.
type RecordFilter struct {
	Dataset  string
	Ward     int
	Category string
}

type FarmFilter struct {
	Ward     int
	FarmType string
	Query    string
	IDs      []string
	Limit    int
	Offset   int
}

// ImportResult counts the rows an upsert import touched.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}
