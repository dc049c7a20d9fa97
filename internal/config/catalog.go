package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Catalog is a seed file of events and their ticket types.  Admin CRUD is
// handled elsewhere; the catalog exists so a fresh database (or the
// in-memory store) has something to sell.
//
//	events:
//	  - id: 7c1f…
//	    name: Spring Concert
//	    starts_at: 2026-05-01T19:00:00Z
//	    ticket_types:
//	      - id: 9a0e…
//	        name: General
//	        capacity: 500
//	        price: "45.00"
type Catalog struct {
	Events []CatalogEvent `yaml:"events"`
}

type CatalogEvent struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	StartsAt    time.Time           `yaml:"starts_at"`
	TicketTypes []CatalogTicketType `yaml:"ticket_types"`
}

type CatalogTicketType struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
	Price    string `yaml:"price"`
}

// LoadCatalog parses the YAML catalog at path.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	return c, nil
}

// Entities converts the catalog into model values, validating ids,
// capacities and prices along the way.
func (c Catalog) Entities() ([]model.Event, []model.TicketType, error) {
	events := make([]model.Event, 0, len(c.Events))
	var types []model.TicketType
	for _, ev := range c.Events {
		if ev.ID == "" || ev.Name == "" {
			return nil, nil, fmt.Errorf("catalog: event needs id and name")
		}
		events = append(events, model.Event{ID: ev.ID, Name: ev.Name, StartsAt: ev.StartsAt.UTC()})
		for _, tt := range ev.TicketTypes {
			if tt.ID == "" || tt.Capacity < 0 {
				return nil, nil, fmt.Errorf("catalog: ticket type %q of event %s is invalid", tt.ID, ev.ID)
			}
			price, err := decimal.NewFromString(tt.Price)
			if err != nil {
				return nil, nil, fmt.Errorf("catalog: price of ticket type %s: %w", tt.ID, err)
			}
			types = append(types, model.TicketType{
				ID:       tt.ID,
				EventID:  ev.ID,
				Name:     tt.Name,
				Capacity: tt.Capacity,
				Price:    price,
			})
		}
	}
	return events, types, nil
}
