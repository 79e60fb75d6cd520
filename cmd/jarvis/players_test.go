//go:build !speaker

package main

import "testing"

func TestDefaultBuildOmitsSpeaker(t *testing.T) {
	if _, ok := optionalPlayers["speaker"]; ok {
		t.Fatal("speaker player should require the speaker build tag")
	}
}
