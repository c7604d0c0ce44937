package process

import (
	"strings"

	"github.com/lysShub/gamecap"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

type Process struct {
	Pid  uint32
	Name string // image name
}

// Lister enumerate live OS processes
type Lister interface {
	Processes() ([]Process, error)
}

// Lookuper games table
type Lookuper interface {
	Lookup(id string) (gamecap.Game, bool)
}

type Resolver struct {
	db     Lookuper
	lister Lister
}

func NewResolver(db Lookuper, lister Lister) *Resolver {
	return &Resolver{db: db, lister: lister}
}

// Resolve get pids of game's processes, return empty if the game not in
// database or processes can't be enumerated.
func (r *Resolver) Resolve(id string) []uint32 {
	game, has := r.db.Lookup(id)
	if !has {
		return nil
	}

	procs, err := r.lister.Processes()
	if err != nil {
		return nil
	}
	return Match(procs, game.Keywords)
}

// Match select processes whose lowered image name contains any lowered keyword.
func Match(procs []Process, keywords []string) []uint32 {
	var kws = make([]string, 0, len(keywords))
	for _, e := range keywords {
		if e != "" {
			kws = append(kws, strings.ToLower(e))
		}
	}

	var pids []uint32
	for _, p := range procs {
		name := strings.ToLower(p.Name)
		for _, kw := range kws {
			if strings.Contains(name, kw) {
				pids = append(pids, p.Pid)
				break
			}
		}
	}
	return pids
}

// Gopsutil list processes by gopsutil, processes that name can't be
// read (exited, access denied) are skipped.
type Gopsutil struct{}

var _ Lister = Gopsutil{}

func (Gopsutil) Processes() ([]Process, error) {
	ps, err := process.Processes()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var procs = make([]Process, 0, len(ps))
	for _, p := range ps {
		name, err := p.Name()
		if err != nil {
			continue
		}
		procs = append(procs, Process{Pid: uint32(p.Pid), Name: name})
	}
	return procs, nil
}

// Static fixed process table
type Static []Process

func (s Static) Processes() ([]Process, error) {
	return append([]Process(nil), s...), nil
}
