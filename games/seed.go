package games

import (
	"encoding/json"
	"io"
	"os"

	"github.com/lysShub/gamecap"
	"github.com/pkg/errors"
)

// Seed builtin games table
func Seed() []gamecap.Game {
	return []gamecap.Game{
		{
			ID: "valorant", Name: "Valorant",
			Keywords: []string{"valorant.exe", "valorant-win64-shipping.exe"},
			Ports:    []uint16{7000, 7001, 7002, 7003, 7004, 7005, 7006, 7007, 7008, 7009},
		},
		{
			ID: "lol", Name: "League of Legends",
			Keywords: []string{"league of legends.exe", "leagueclient.exe"},
			Ports:    []uint16{5000, 5001, 5002, 5003, 5004, 5005, 5006, 5007, 5008, 5009},
		},
		{
			ID: "csgo", Name: "Counter-Strike 2",
			Keywords: []string{"cs2.exe", "csgo.exe"},
			Ports:    []uint16{27015, 27016, 27017, 27018, 27019},
		},
		{
			ID: "fortnite", Name: "Fortnite",
			Keywords: []string{"fortniteclient-win64-shipping.exe"},
			Ports:    []uint16{9000, 9001, 9002, 9003, 9004},
		},
		{
			ID: "apex", Name: "Apex Legends",
			Keywords: []string{"r5apex.exe"},
			Ports:    []uint16{37015, 37016, 37017},
		},
		{
			ID: "warzone", Name: "Call of Duty: Warzone",
			Keywords: []string{"modernwarfare.exe", "warzone.exe"},
			Ports:    []uint16{3074, 53, 88},
		},
		{
			ID: "fifa", Name: "EA FC 24",
			Keywords: []string{"fc24.exe", "fifa24.exe"},
			Ports:    []uint16{3659, 9565, 9570},
		},
		{
			ID: "pubg", Name: "PUBG",
			Keywords: []string{"tslgame.exe"},
			Ports:    []uint16{7000, 7001, 7002},
		},
	}
}

// Load read games table from a json file, the file content is a array of gamecap.Game.
func Load(path string) ([]gamecap.Game, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer fh.Close()
	return Decode(fh)
}

func Decode(r io.Reader) ([]gamecap.Game, error) {
	var gs []gamecap.Game
	if err := json.NewDecoder(r).Decode(&gs); err != nil {
		return nil, errors.WithStack(err)
	}
	for i, e := range gs {
		if e.ID == "" {
			return nil, errors.Errorf("game %d require gameId", i)
		}
		for _, p := range e.Ports {
			if p == 0 {
				return nil, errors.Errorf("game %s invalid port 0", e.ID)
			}
		}
	}
	return gs, nil
}
