package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmohaa/match-server/internal/models"
)

func TestMerge_StateWins(t *testing.T) {
	existing := Document{
		"rating":   json.RawMessage(`10`),
		"clan_tag": json.RawMessage(`"[MOH]"`),
	}
	state := Document{"rating": json.RawMessage(`35`)}

	merged := Merge(existing, state)
	assert.JSONEq(t, `35`, string(merged["rating"]))
	assert.JSONEq(t, `"[MOH]"`, string(merged["clan_tag"]))
	assert.JSONEq(t, `10`, string(existing["rating"]), "inputs are not modified")
}

func TestMerge_NilExisting(t *testing.T) {
	merged := Merge(nil, Document{"a": json.RawMessage(`1`)})
	assert.Len(t, merged, 1)
}

func TestEncode_Canonical(t *testing.T) {
	a := Document{"b": json.RawMessage(`{ "y": 1 }`), "a": json.RawMessage(`[1, 2]`)}
	b := Document{"a": json.RawMessage(`[1,2]`), "b": json.RawMessage(`{"y":1}`)}

	ea, err := a.Encode()
	require.NoError(t, err)
	eb, err := b.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(ea), string(eb))
	assert.Equal(t, `{"a":[1,2],"b":{"y":1}}`, string(ea))
}

func TestDecode_Corrupted(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrCorrupted)

	_, err = Decode([]byte(`null`))
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestProfileRoundTrip(t *testing.T) {
	p := &models.Profile{ID: "g1", Name: "Ace", Kills: 12, Rating: 40, Level: 2}
	doc, err := FromProfile(p)
	require.NoError(t, err)
	doc["unknown"] = json.RawMessage(`true`)

	back, err := doc.ToProfile()
	require.NoError(t, err)
	assert.Equal(t, p.Kills, back.Kills)
	assert.Equal(t, p.Rating, back.Rating)
	assert.Equal(t, "Ace", back.Name)
}
