// Package games holds the in-memory table of known games.
//
// The table is replaced wholesale by Replace; readers always see either the
// old or the new table, never a mix. A running capture observes a Replace on
// its next classification decision.
package games

import (
	"sync/atomic"

	"github.com/lysShub/gamecap"
)

type Database struct {
	tab atomic.Pointer[table]
}

type table struct {
	games []gamecap.Game
	index map[string]int
}

func New(entries ...gamecap.Game) *Database {
	var d = &Database{}
	d.Replace(entries)
	return d
}

// Replace replace whole table, entries are copied.
func (d *Database) Replace(entries []gamecap.Game) {
	var t = &table{
		games: make([]gamecap.Game, 0, len(entries)),
		index: make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, has := t.index[e.ID]; !has {
			t.index[e.ID] = len(t.games)
		}
		t.games = append(t.games, e.Clone())
	}
	d.tab.Store(t)
}

// Lookup exact match by id, the first entry wins on duplicate id. The
// returned Game is shared with the table and must not be modified.
func (d *Database) Lookup(id string) (gamecap.Game, bool) {
	t := d.tab.Load()
	if t == nil {
		return gamecap.Game{}, false
	}
	i, has := t.index[id]
	if !has {
		return gamecap.Game{}, false
	}
	return t.games[i], true
}

func (d *Database) Games() []gamecap.Game {
	t := d.tab.Load()
	if t == nil {
		return nil
	}
	var gs = make([]gamecap.Game, 0, len(t.games))
	for _, e := range t.games {
		gs = append(gs, e.Clone())
	}
	return gs
}

func (d *Database) Len() int {
	if t := d.tab.Load(); t != nil {
		return len(t.games)
	}
	return 0
}
