package ws

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: for any interleaving of operator registrations across sites,
// each site holds at most one binding and it points at the most recent
// registration; unregistering everything leaves the hub empty.
func TestOperatorBindingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("latest operator registration wins per site", prop.ForAll(
		func(siteIdx []int) bool {
			f := setupHub(t)

			latest := make(map[string]int64)
			var ids []int64
			var sites []string
			for _, idx := range siteIdx {
				site := fmt.Sprintf("site-%d", idx)
				id := f.hub.Register(site, "lobby", true, &fakeRecipient{})
				latest[site] = id
				ids = append(ids, id)
				sites = append(sites, site)
			}

			f.hub.mu.Lock()
			ok := len(f.hub.operators) == len(latest)
			for site, want := range latest {
				b, bound := f.hub.operators[site]
				if !bound || b.connID != want {
					ok = false
				}
			}
			f.hub.mu.Unlock()
			if !ok {
				return false
			}

			// Stale connections unregistering must not disturb the
			// surviving binding; the winner unregistering clears it.
			for i, id := range ids {
				f.hub.Unregister(id, sites[i], "lobby", true, nil)
			}

			f.hub.mu.Lock()
			defer f.hub.mu.Unlock()
			return len(f.hub.operators) == 0 && len(f.hub.sessions) == 0 && len(f.hub.rooms) == 0
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.Property("connection ids strictly increase", prop.ForAll(
		func(n int) bool {
			f := setupHub(t)

			var prev int64
			for i := 0; i < n; i++ {
				id := f.hub.Register("s1", "r1", false, &fakeRecipient{})
				if id <= prev {
					return false
				}
				prev = id
			}
			return true
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// Property: visitor churn across random rooms always drains back to an
// empty membership table once every visitor has unregistered.
func TestVisitorChurnProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("unregistering every visitor empties the hub", prop.ForAll(
		func(roomIdx []int) bool {
			f := setupHub(t)

			type reg struct {
				id   int64
				room string
			}
			var regs []reg
			for _, idx := range roomIdx {
				room := fmt.Sprintf("room-%d", idx)
				id := f.hub.Register("s1", room, false, &fakeRecipient{})
				regs = append(regs, reg{id: id, room: room})
			}

			for _, r := range regs {
				f.hub.Unregister(r.id, "s1", r.room, false, nil)
			}

			f.hub.mu.Lock()
			defer f.hub.mu.Unlock()
			return len(f.hub.sessions) == 0 && len(f.hub.rooms) == 0
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}
