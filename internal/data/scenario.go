package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnGroup describes one population of moving entities.
type SpawnGroup struct {
	Name     string  `yaml:"name"`
	Count    int     `yaml:"count"`    // population the spawner keeps topped up
	Speed    float64 `yaml:"speed"`    // max speed per axis, units/second
	Boundary string  `yaml:"boundary"` // wrap | free | bounce
	Lifetime int     `yaml:"lifetime_ticks"`
	Origin   Point   `yaml:"origin"`
	Spread   float64 `yaml:"spread"` // spawn jitter around Origin
	Respawn  bool    `yaml:"respawn"`
}

type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Scenario is the spawn table loaded from scenario.yaml.
type Scenario struct {
	Name   string       `yaml:"name"`
	Groups []SpawnGroup `yaml:"groups"`
}

// LoadScenario loads and checks a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(raw)
}

func ParseScenario(raw []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Groups) == 0 {
		return nil, fmt.Errorf("scenario %q has no spawn groups", s.Name)
	}
	for i := range s.Groups {
		g := &s.Groups[i]
		if g.Name == "" {
			g.Name = fmt.Sprintf("group-%d", i)
		}
		if g.Count < 0 {
			return nil, fmt.Errorf("group %s: negative count %d", g.Name, g.Count)
		}
		if g.Speed < 0 || g.Spread < 0 {
			return nil, fmt.Errorf("group %s: speed and spread must not be negative", g.Name)
		}
		switch g.Boundary {
		case "":
			g.Boundary = "wrap"
		case "wrap", "free", "bounce":
		default:
			return nil, fmt.Errorf("group %s: unknown boundary %q", g.Name, g.Boundary)
		}
	}
	return &s, nil
}

// Population is the total target count across groups.
func (s *Scenario) Population() int {
	n := 0
	for _, g := range s.Groups {
		n += g.Count
	}
	return n
}

// Count returns the number of spawn groups.
func (s *Scenario) Count() int {
	return len(s.Groups)
}
