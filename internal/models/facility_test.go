package models

import (
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"medical", CategoryMedical, false},
		{" Shelter ", CategoryShelter, false},
		{"FOOD", CategoryFood, false},
		{"transit", CategoryTransit, false},
		{"lodging", CategoryLodging, false},
		{"casino", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisasterEvent_NewerThan(t *testing.T) {
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	d := &DisasterEvent{OccurredAt: base}

	if d.NewerThan(base) {
		t.Error("event should not be newer than its own timestamp")
	}
	if !d.NewerThan(base.Add(-time.Second)) {
		t.Error("event should be newer than an earlier timestamp")
	}
}
