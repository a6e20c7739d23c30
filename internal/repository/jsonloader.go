package repository

import (
	"context"
	"encoding/json"
	"os"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

// facilityMapFile is the on-disk shape read by JSONFacilityStore, meant
// for local development and tests where a live Postgres is unavailable.
type facilityMapFile struct {
	Nodes           []models.NavigationNode   `json:"nodes"`
	Edges           []models.NavigationEdge   `json:"edges"`
	TransitionZones []models.TransitionZone   `json:"transitionZones"`
	RestrictedAreas []models.RestrictedArea   `json:"restrictedAreas"`
}

// JSONFacilityStore implements ports.FacilityMapLoader by reading a
// single JSON file, the on-disk twin of FacilityStore's Postgres
// queries.
type JSONFacilityStore struct {
	data facilityMapFile
}

// NewJSONFacilityStore reads and parses the facility map file at path.
func NewJSONFacilityStore(path string) (*JSONFacilityStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to read facility map file")
	}
	var data facilityMapFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, err, "failed to parse facility map file")
	}
	return &JSONFacilityStore{data: data}, nil
}

func (s *JSONFacilityStore) LoadNodes(context.Context) ([]models.NavigationNode, error) {
	return s.data.Nodes, nil
}

func (s *JSONFacilityStore) LoadEdges(context.Context) ([]models.NavigationEdge, error) {
	return s.data.Edges, nil
}

func (s *JSONFacilityStore) LoadTransitionZones(context.Context) ([]models.TransitionZone, error) {
	return s.data.TransitionZones, nil
}

func (s *JSONFacilityStore) LoadRestrictedAreas(context.Context) ([]models.RestrictedArea, error) {
	return s.data.RestrictedAreas, nil
}
