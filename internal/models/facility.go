package models

import (
	"fmt"
	"strings"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
)

type Category string

const (
	CategoryMedical Category = "medical"
	CategoryShelter Category = "shelter"
	CategoryFood    Category = "food"
	CategoryTransit Category = "transit"
	CategoryLodging Category = "lodging"
)

var Categories = []Category{
	CategoryMedical,
	CategoryShelter,
	CategoryFood,
	CategoryTransit,
	CategoryLodging,
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown facility category: %q", s)
}

// Facility is a point of interest returned by the places provider. Not persisted.
type Facility struct {
	Category   Category
	Name       string
	Coordinate geo.Coordinate
	Address    string
	ProviderID string
}
