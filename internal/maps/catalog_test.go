package maps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmohaa/match-server/internal/models"
)

const testCatalog = `
lobby: [0, 0, 64]
maps:
  - id: 3
    name: dust
    spawns:
      attackers: [[10, 20, 0], [11, 21, 0]]
      defenders: [[-10, -20, 0]]
  - id: 5
    name: sand
  - id: 7
    name: dustbowl
  - id: 9
    name: stalingrad
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	assert.Len(t, c.All(), 4)
	assert.Equal(t, models.Vec3{0, 0, 64}, c.Lobby())

	m, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, "dust", m.Name)
}

func TestParse_InvalidSpawn(t *testing.T) {
	_, err := Parse([]byte(`
maps:
  - id: 1
    name: broken
    spawns:
      attackers: [[1, 2]]
`))
	assert.Error(t, err)
}

func TestParse_DuplicateID(t *testing.T) {
	_, err := Parse([]byte(`
maps:
  - id: 1
    name: a
  - id: 1
    name: b
`))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	tests := []struct {
		selector string
		want     []int
	}{
		{"3", []int{3}},
		{"5", []int{5}},
		{"DUST", []int{3}},
		{"bowl", []int{7}},
		{"s", []int{3, 5, 7, 9}},
		{"ust", []int{3, 7}},
		{"nuke", nil},
		{"", nil},
		{"42", nil},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			var got []int
			for _, m := range c.Resolve(tt.selector) {
				got = append(got, m.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpawn(t *testing.T) {
	c, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		p := c.Spawn(3, models.FactionAttackers)
		assert.Contains(t, []models.Vec3{{10, 20, 0}, {11, 21, 0}}, p)
	}
	assert.Equal(t, models.Vec3{-10, -20, 0}, c.Spawn(3, models.FactionDefenders))
	assert.Equal(t, c.Lobby(), c.Spawn(5, models.FactionAttackers))
	assert.Equal(t, c.Lobby(), c.Spawn(99, models.FactionAttackers))
}
