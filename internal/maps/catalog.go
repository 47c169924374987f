// Package maps loads the playable map catalog and resolves map selectors.
package maps

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openmohaa/match-server/internal/models"
	"github.com/openmohaa/match-server/internal/stats"
)

// Map is one catalog entry with its spawn points.
type Map struct {
	ID        int
	Name      string
	Attackers []models.Vec3
	Defenders []models.Vec3
}

type catalogFile struct {
	Lobby []float64 `yaml:"lobby"`
	Maps  []struct {
		ID     int    `yaml:"id"`
		Name   string `yaml:"name"`
		Spawns struct {
			Attackers [][]float64 `yaml:"attackers"`
			Defenders [][]float64 `yaml:"defenders"`
		} `yaml:"spawns"`
	} `yaml:"maps"`
}

// Catalog is the immutable set of maps plus a spawn RNG.
type Catalog struct {
	maps  []Map
	byID  map[int]int
	lobby models.Vec3

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a catalog. Map ids and names must be unique.
func New(maps []Map, lobby models.Vec3, rng *rand.Rand) (*Catalog, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c := &Catalog{
		maps:  make([]Map, 0, len(maps)),
		byID:  make(map[int]int, len(maps)),
		lobby: lobby,
		rng:   rng,
	}
	names := make(map[string]bool, len(maps))
	for _, m := range maps {
		if m.Name == "" {
			return nil, fmt.Errorf("map %d: empty name", m.ID)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("map %d: duplicate id", m.ID)
		}
		key := strings.ToLower(m.Name)
		if names[key] {
			return nil, fmt.Errorf("map %q: duplicate name", m.Name)
		}
		names[key] = true
		c.byID[m.ID] = len(c.maps)
		c.maps = append(c.maps, m)
	}
	sort.Slice(c.maps, func(i, j int) bool { return c.maps[i].ID < c.maps[j].ID })
	for i, m := range c.maps {
		c.byID[m.ID] = i
	}
	return c, nil
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog, validating every position as a vector3.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode map catalog: %w", err)
	}

	var lobby models.Vec3
	if f.Lobby != nil {
		v, err := toVec3(f.Lobby)
		if err != nil {
			return nil, fmt.Errorf("lobby: %w", err)
		}
		lobby = v
	}

	maps := make([]Map, 0, len(f.Maps))
	for _, fm := range f.Maps {
		m := Map{ID: fm.ID, Name: fm.Name}
		for _, p := range fm.Spawns.Attackers {
			v, err := toVec3(p)
			if err != nil {
				return nil, fmt.Errorf("map %q attacker spawn: %w", fm.Name, err)
			}
			m.Attackers = append(m.Attackers, v)
		}
		for _, p := range fm.Spawns.Defenders {
			v, err := toVec3(p)
			if err != nil {
				return nil, fmt.Errorf("map %q defender spawn: %w", fm.Name, err)
			}
			m.Defenders = append(m.Defenders, v)
		}
		maps = append(maps, m)
	}
	return New(maps, lobby, nil)
}

func toVec3(p []float64) (models.Vec3, error) {
	valid, err := stats.LookupValidator(stats.ValidateVector3)
	if err != nil {
		return models.Vec3{}, err
	}
	if !valid(p) {
		return models.Vec3{}, fmt.Errorf("invalid position %v", p)
	}
	v, _ := stats.ToVec3(p)
	return v, nil
}

// All returns every map in id order.
func (c *Catalog) All() []models.MapInfo {
	out := make([]models.MapInfo, 0, len(c.maps))
	for _, m := range c.maps {
		out = append(out, models.MapInfo{ID: m.ID, Name: m.Name})
	}
	return out
}

// Get returns the map with the given id.
func (c *Catalog) Get(id int) (models.MapInfo, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.MapInfo{}, false
	}
	return models.MapInfo{ID: c.maps[i].ID, Name: c.maps[i].Name}, true
}

// Resolve matches a selector against the catalog: a numeric id, then an exact
// case-insensitive name, then every name containing the selector.
func (c *Catalog) Resolve(selector string) []models.MapInfo {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}
	if id, err := strconv.Atoi(selector); err == nil {
		if m, ok := c.Get(id); ok {
			return []models.MapInfo{m}
		}
	}

	needle := strings.ToLower(selector)
	var matches []models.MapInfo
	for _, m := range c.maps {
		name := strings.ToLower(m.Name)
		if name == needle {
			return []models.MapInfo{{ID: m.ID, Name: m.Name}}
		}
		if strings.Contains(name, needle) {
			matches = append(matches, models.MapInfo{ID: m.ID, Name: m.Name})
		}
	}
	return matches
}

// Spawn draws a spawn point for the faction on a map, falling back to the
// lobby when the map defines none.
func (c *Catalog) Spawn(mapID int, f models.Faction) models.Vec3 {
	i, ok := c.byID[mapID]
	if !ok {
		return c.lobby
	}
	var points []models.Vec3
	switch f {
	case models.FactionAttackers:
		points = c.maps[i].Attackers
	case models.FactionDefenders:
		points = c.maps[i].Defenders
	}
	if len(points) == 0 {
		return c.lobby
	}
	c.mu.Lock()
	n := c.rng.IntN(len(points))
	c.mu.Unlock()
	return points[n]
}

// Lobby returns the lobby position.
func (c *Catalog) Lobby() models.Vec3 {
	return c.lobby
}
