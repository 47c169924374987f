// Command seeder drives a local match server through one short round:
// players connect, pick sides, vote a map, and trade kills until one side
// is eliminated.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const adminID = "seed-admin-0001"

type client struct {
	base string
	http *http.Client
}

func (c *client) do(method, path, actor string, body any) (int, []byte) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("Failed to send request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func (c *client) must(method, path, actor string, body any) []byte {
	status, out := c.do(method, path, actor, body)
	if status >= 300 {
		log.Fatalf("%s %s: %d %s", method, path, status, out)
	}
	return out
}

func main() {
	base := flag.String("url", "http://localhost:8080/api/v1", "match server API base URL")
	selector := flag.String("map", "", "map selector to vote for (first catalog map when empty)")
	players := flag.Int("players", 4, "players per side")
	flag.Parse()

	c := &client{base: *base, http: &http.Client{Timeout: 5 * time.Second}}

	var attackers, defenders []string
	for i := 0; i < *players; i++ {
		attackers = append(attackers, fmt.Sprintf("seed-att-%04d", i))
		defenders = append(defenders, fmt.Sprintf("seed-def-%04d", i))
	}

	c.must(http.MethodPost, "/participants", "", map[string]string{"id": adminID, "name": "SeedAdmin"})
	for i, id := range append(append([]string{}, attackers...), defenders...) {
		faction := "attackers"
		if i >= len(attackers) {
			faction = "defenders"
		}
		c.must(http.MethodPost, "/participants", "", map[string]string{"id": id, "name": id})
		c.must(http.MethodPut, "/participants/"+id+"/faction", "", map[string]string{"faction": faction})
	}
	fmt.Printf("Connected %d players\n", 2**players)

	if *selector == "" {
		*selector = "1"
	}
	c.must(http.MethodPost, "/vote", attackers[0], map[string]string{"selector": *selector})
	for _, id := range defenders {
		c.do(http.MethodPost, "/vote", id, map[string]string{"selector": *selector})
	}
	var res struct {
		Map struct {
			Name string `json:"name"`
		} `json:"map"`
		Resolved bool `json:"resolved"`
	}
	if err := json.Unmarshal(c.must(http.MethodPost, "/vote/resolve", adminID, nil), &res); err != nil {
		log.Fatalf("Failed to decode vote result: %v", err)
	}
	fmt.Printf("Vote resolved: %s\n", res.Map.Name)

	c.must(http.MethodPost, "/session/start", adminID, nil)
	fmt.Println("Round started")

	weapons := []string{"Thompson", "Kar98k", "M1 Garand", "MP40"}
	for i, victim := range defenders {
		killer := attackers[i%len(attackers)]
		helper := attackers[(i+1)%len(attackers)]
		c.must(http.MethodPost, "/session/hits", adminID, map[string]any{
			"attacker": helper, "victim": victim, "weapon": weapons[i%len(weapons)], "damage": 40,
		})
		c.must(http.MethodPost, "/session/hits", adminID, map[string]any{
			"attacker": killer, "victim": victim, "weapon": weapons[(i+1)%len(weapons)], "damage": 60,
		})
		out := c.must(http.MethodPost, "/session/kills", adminID, map[string]any{
			"killer": killer, "victim": victim, "position": []float64{float64(i * 32), 0, 0},
		})
		fmt.Printf("%s killed %s %s\n", killer, victim, out)
	}

	status, out := c.do(http.MethodGet, "/session", "", nil)
	fmt.Printf("Status: %d\n", status)
	fmt.Printf("Response: %s\n", out)
}
