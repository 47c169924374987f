package engine

import (
	"sort"

	"github.com/openmohaa/match-server/internal/models"
)

type entry struct {
	participant models.Participant
	position    models.Vec3
}

// Directory tracks connected participants. It is owned by the engine loop.
type Directory struct {
	entries map[string]*entry
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]*entry)}
}

func (d *Directory) Add(p models.Participant, pos models.Vec3) bool {
	if _, ok := d.entries[p.ID]; ok {
		return false
	}
	d.entries[p.ID] = &entry{participant: p, position: pos}
	return true
}

func (d *Directory) Remove(id string) {
	delete(d.entries, id)
}

func (d *Directory) Get(id string) (models.Participant, bool) {
	e, ok := d.entries[id]
	if !ok {
		return models.Participant{}, false
	}
	return e.participant, true
}

func (d *Directory) Position(id string) (models.Vec3, bool) {
	e, ok := d.entries[id]
	if !ok {
		return models.Vec3{}, false
	}
	return e.position, true
}

// All returns the participants sorted by id.
func (d *Directory) All() []models.Participant {
	out := make([]models.Participant, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) SetState(id string, s models.LifecycleState) {
	if e, ok := d.entries[id]; ok {
		e.participant.State = s
	}
}

func (d *Directory) SetFaction(id string, f models.Faction) {
	if e, ok := d.entries[id]; ok {
		e.participant.Faction = f
	}
}

func (d *Directory) Place(id string, pos models.Vec3) {
	if e, ok := d.entries[id]; ok {
		e.position = pos
	}
}
