package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatforms(t *testing.T) {
	tests := []struct {
		name      string
		objective string
		model     *PlatformRequirements
		want      PlatformRequirements
	}{
		{
			name:      "web app with REST API",
			objective: "Build a task management web app with a REST API",
			want:      PlatformRequirements{Web: true},
		},
		{
			name:      "generic mobile means both stores",
			objective: "A mobile app for tracking habits",
			want:      PlatformRequirements{IOS: true, Android: true},
		},
		{
			name:      "android only",
			objective: "Offline-first Android note taker",
			want:      PlatformRequirements{Android: true},
		},
		{
			name:      "ios inside another word does not match",
			objective: "Scenarios engine for a web dashboard",
			want:      PlatformRequirements{Web: true},
		},
		{
			name:      "web plus iPhone",
			objective: "Recipe website with an iPhone companion",
			want:      PlatformRequirements{Web: true, IOS: true},
		},
		{
			name:      "keywords beat model flags",
			objective: "Android habit tracker",
			model:     &PlatformRequirements{Web: true},
			want:      PlatformRequirements{Android: true},
		},
		{
			name:      "no keyword uses model flags",
			objective: "Inventory system for a warehouse",
			model:     &PlatformRequirements{Web: true, Android: true},
			want:      PlatformRequirements{Web: true, Android: true},
		},
		{
			name:      "nothing defaults to web",
			objective: "Inventory system for a warehouse",
			model:     &PlatformRequirements{},
			want:      PlatformRequirements{Web: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPlatforms(tt.objective, tt.model))
		})
	}
}
