package api

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestTokenTracker(t *testing.T) {
	tracker := NewTokenTracker()

	tracker.Add(1000, 500)
	tracker.Add(2000, 1500)

	in, out := tracker.Total()
	if in != 3000 {
		t.Errorf("input tokens = %d, want 3000", in)
	}
	if out != 2000 {
		t.Errorf("output tokens = %d, want 2000", out)
	}
	if tracker.Calls() != 2 {
		t.Errorf("calls = %d, want 2", tracker.Calls())
	}

	tracker.Reset()
	in, out = tracker.Total()
	if in != 0 || out != 0 || tracker.Calls() != 0 {
		t.Errorf("after reset: in=%d out=%d calls=%d, want zeros", in, out, tracker.Calls())
	}
}

func TestTokenTrackerCost(t *testing.T) {
	tracker := NewTokenTracker()
	tracker.Add(1_000_000, 1_000_000)

	// $3/1M input + $15/1M output
	if got := tracker.Cost(); got != 18.0 {
		t.Errorf("cost = %v, want 18.0", got)
	}

	empty := NewTokenTracker()
	if got := empty.Cost(); got != 0 {
		t.Errorf("empty cost = %v, want 0", got)
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if !strings.HasPrefix(string(got), "us.anthropic.claude-sonnet-4") {
		t.Errorf("translated model = %s", got)
	}

	custom := anthropic.Model("us.anthropic.custom-v1:0")
	if got := translateModelForBedrock(custom); got != custom {
		t.Errorf("already-translated model changed to %s", got)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewClientDefaultsModel(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("model = %s, want default sonnet", client.Model())
	}
	if client.IsBedrock() {
		t.Error("direct API client should not report Bedrock")
	}
}
