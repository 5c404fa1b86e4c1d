// Package search finds farms by free text, preferring Meilisearch and
// falling back to Postgres pattern matching when it is unavailable.
package search

import "digiprofile/api/internal/wardstat"

// Query describes a farm search request.
type Query struct {
	Text     string
	Ward     int
	FarmType string
	Limit    int
	Offset   int
}

// Engine names the backend that answered a query.
type Engine string

const (
	EngineMeili    Engine = "meilisearch"
	EnginePostgres Engine = "postgres"
)

// Page is one page of matching farms.
type Page struct {
	Farms  []wardstat.Farm `json:"items"`
	Total  int             `json:"total"`
	Engine Engine          `json:"engine"`
}

// FarmDocument is the data indexed for one farm.
type FarmDocument struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	WardNumber  int      `json:"wardNumber"`
	FarmType    string   `json:"farmType"`
	OwnerName   string   `json:"ownerName"`
	Description string   `json:"description"`
	MainCrops   []string `json:"mainCrops"`
	Livestock   []string `json:"livestock"`
}

func DocumentFromFarm(f wardstat.Farm) FarmDocument {
	return FarmDocument{
		ID:          f.ID,
		Name:        f.Name,
		WardNumber:  f.WardNumber,
		FarmType:    f.FarmType,
		OwnerName:   f.OwnerName,
		Description: f.Description,
		MainCrops:   f.MainCrops,
		Livestock:   f.Livestock,
	}
}
