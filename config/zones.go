package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"food-delivery/tracking/models"
)

// ZoneSeed is one zone in the seed file. Coordinates are [lng, lat] pairs.
type ZoneSeed struct {
	Name        string      `yaml:"name" validate:"required,max=200"`
	Coordinates [][]float64 `yaml:"coordinates" validate:"required,min=3,dive,len=2"`
}

type zoneSeedFile struct {
	Zones []ZoneSeed `yaml:"zones" validate:"dive"`
}

func (z ZoneSeed) Ring() models.Ring {
	ring := make(models.Ring, len(z.Coordinates))
	for i, c := range z.Coordinates {
		ring[i] = models.Vertex{c[0], c[1]}
	}
	return ring
}

// LoadZoneSeed reads the zones registered at startup. Geometry is checked
// later, when each zone is added to the index.
func LoadZoneSeed(path string) ([]ZoneSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone seed: %w", err)
	}

	var file zoneSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse zone seed %s: %w", path, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid zone seed %s: %w", path, err)
	}
	return file.Zones, nil
}
