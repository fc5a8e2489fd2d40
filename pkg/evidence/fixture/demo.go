package fixture

import (
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

// DemoQuery is the question the Demo evidence answers.
const DemoQuery = "Who is financing the Bexley port expansion?"

// Demo returns a small recorded investigation. Two corroborated stories
// emerge from it, a denial contradicts one of them and one item is a
// single-source rumour that never forms a hypothesis.
func Demo() []common.Evidence {
	day := func(d int) time.Time {
		return time.Date(2025, time.March, d, 9, 0, 0, 0, time.UTC)
	}
	return []common.Evidence{
		{
			ID:          "demo-1",
			Title:       "Harbor authority files expansion plan",
			URL:         "https://www.portnews.example.com/bexley-plan",
			Excerpt:     "Orion Capital funds Bexley Port Authority. The plan covers two new berths.",
			PublishedAt: day(3),
		},
		{
			ID:          "demo-2",
			Title:       "Contractors line up",
			URL:         "https://wire.example.org/contractors",
			Excerpt:     "Bexley Port Authority pays Carver Dredging. Works start in the spring.",
			PublishedAt: day(5),
		},
		{
			ID:          "demo-3",
			Title:       "Fund flows traced",
			URL:         "https://ledger.example.net/flows",
			Excerpt:     "Marlow Trust transfers funds to Orion Capital. The transfer was routed via Valletta.",
			PublishedAt: day(7),
		},
		{
			ID:          "demo-4",
			Title:       "Steel order",
			URL:         "https://trade.example.co.uk/steel",
			Excerpt:     "Dunmore Steel supplies Halden Yard. Halden Yard is based in Rotterdam.",
			PublishedAt: day(8),
		},
		{
			ID:          "demo-5",
			Title:       "Yard contract",
			URL:         "https://shipping.example.de/halden",
			Excerpt:     "Halden Yard ships to Bexley Terminal. Deliveries begin in June.",
			PublishedAt: day(9),
		},
		{
			ID:          "demo-6",
			Title:       "Statement",
			URL:         "https://www.portnews.example.com/statement",
			Excerpt:     "Orion Capital denies Marlow Trust.",
			PublishedAt: day(10),
		},
		{
			ID:          "demo-7",
			Title:       "Forum post",
			URL:         "https://forum.example.io/t/123",
			Excerpt:     "Sable Holdings acquires Kestrel Marine.",
			PublishedAt: day(11),
		},
	}
}
