package main

import "github.com/loqalabs/jarvis/internal/runtime"

// optionalPlayers holds player modes compiled in through build tags.
var optionalPlayers = map[string]runtime.PlayerFactory{}

func registerPlayers(rt *runtime.Runtime) {
	for mode, factory := range optionalPlayers {
		rt.RegisterPlayer(mode, factory)
	}
}
