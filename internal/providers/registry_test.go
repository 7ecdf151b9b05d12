package providers

import (
	"testing"
	"time"

	"weathercollect/pkg/apikeys"
)

func testOptions() Options {
	return Options{
		Timeout:           5 * time.Second,
		RequestsPerMinute: 60,
		BurstSize:         10,
	}
}

func TestBuildRespectsPriorityOrder(t *testing.T) {
	manager, store := apikeys.NewMockManager()
	store.Store(&apikeys.Credential{Provider: "visualcrossing", Key: "vc"})
	store.Store(&apikeys.Credential{Provider: "openweather", Key: "ow"})
	store.Store(&apikeys.Credential{Provider: "qweather", Key: "qw"})

	adapters, err := Build([]string{"openweather", "qweather", "visualcrossing"}, manager, testOptions())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{"openweather", "qweather", "visualcrossing"}
	if len(adapters) != len(want) {
		t.Fatalf("Expected %d adapters, got %d", len(want), len(adapters))
	}
	for i, name := range want {
		if adapters[i].Name() != name {
			t.Errorf("Expected adapter %d to be %s, got %s", i, name, adapters[i].Name())
		}
	}
}

func TestBuildSkipsProvidersWithoutKeys(t *testing.T) {
	manager, store := apikeys.NewMockManager()
	store.Store(&apikeys.Credential{Provider: "openweather", Key: "ow"})

	adapters, err := Build([]string{"visualcrossing", "openweather"}, manager, testOptions())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(adapters) != 1 || adapters[0].Name() != "openweather" {
		t.Errorf("Expected only openweather, got %d adapters", len(adapters))
	}
}

func TestBuildFailsWithNoKeys(t *testing.T) {
	manager, _ := apikeys.NewMockManager()
	if _, err := Build([]string{"visualcrossing"}, manager, testOptions()); err == nil {
		t.Error("Expected error when no provider has a key")
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	manager, store := apikeys.NewMockManager()
	store.Store(&apikeys.Credential{Provider: "darksky", Key: "ds"})

	if _, err := Build([]string{"darksky"}, manager, testOptions()); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
