package sheets

import (
	"testing"
	"time"

	"velora/internal/model"
)

func TestFilterActiveAppointments(t *testing.T) {
	s := &SheetsService{}

	appts := []model.Appointment{
		{ID: 1, Status: model.StatusPending},
		{ID: 2, Status: model.StatusConfirmed},
		{ID: 3, Status: model.StatusCancelled},
		{ID: 4, Status: model.StatusCompleted},
	}

	active := s.filterActiveAppointments(appts)

	if len(active) != 3 {
		t.Errorf("Expected 3 active appointments, got %d", len(active))
	}

	for _, a := range active {
		if a.Status == model.StatusCancelled {
			t.Errorf("Cancelled appointment found in active list")
		}
	}
}

func TestAppointmentRowValues(t *testing.T) {
	createdAt := time.Date(2024, 12, 20, 10, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2024, 12, 21, 11, 0, 0, 0, time.UTC)

	appt := &model.Appointment{
		ID:        123,
		UserID:    456,
		UserName:  "Test User",
		Date:      "2024-12-25",
		Time:      "10:30",
		Duration:  60,
		Services:  []model.ServiceRef{model.ExpandService(model.Service{ID: 1, Name: "Corte"})},
		Status:    model.StatusConfirmed,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	values := appointmentRowValues(appt)

	expected := []interface{}{
		int64(123),
		int64(456),
		"Test User",
		"2024-12-25",
		"10:30",
		60,
		"Corte",
		"confirmed",
		"2024-12-20 10:00:00",
		"2024-12-21 11:00:00",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}

	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := &SheetsService{
		rowCache: make(map[int64]int),
	}

	s.setCachedRow(100, 5)
	row, ok := s.getCachedRow(100)
	if !ok || row != 5 {
		t.Errorf("Expected row 5, got %d (ok=%v)", row, ok)
	}

	s.deleteCachedRow(100)
	_, ok = s.getCachedRow(100)
	if ok {
		t.Errorf("Expected row to be deleted from cache")
	}

	s.setCachedRow(200, 10)
	s.ClearCache()
	_, ok = s.getCachedRow(200)
	if ok {
		t.Errorf("Expected cache to be cleared")
	}
}

func TestParseRowFromRange(t *testing.T) {
	tests := []struct {
		rng string
		row int
		ok  bool
	}{
		{"Citas!A7:J7", 7, true},
		{"Citas!A12", 12, true},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		row, ok := parseRowFromRange(tt.rng)
		if row != tt.row || ok != tt.ok {
			t.Errorf("parseRowFromRange(%q) = %d, %v; want %d, %v", tt.rng, row, ok, tt.row, tt.ok)
		}
	}
}
