//go:build speaker

package main

import "testing"

func TestSpeakerBuildRegistersSpeaker(t *testing.T) {
	if _, ok := optionalPlayers["speaker"]; !ok {
		t.Fatal("speaker player missing from speaker build")
	}
}
