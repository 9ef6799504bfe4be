package conflict

import (
	"testing"

	"velora/internal/model"
)

func appt(id int64, start string, duration int, status model.Status) model.Appointment {
	return model.Appointment{ID: id, Date: "2024-06-10", Time: start, Duration: duration, Status: status}
}

func TestOverlaps(t *testing.T) {
	existing := []model.Appointment{
		appt(1, "10:00", 60, model.StatusConfirmed), // 10:00-11:00
		appt(2, "14:00", 30, model.StatusCancelled), // freed slot
	}

	tests := []struct {
		name      string
		candidate Candidate
		exclude   int64
		want      bool
	}{
		{"identical slot", Candidate{Start: 600, Duration: 60}, 0, true},
		{"starts inside", Candidate{Start: 630, Duration: 30}, 0, true},
		{"covers entirely", Candidate{Start: 570, Duration: 120}, 0, true},
		{"touching end does not overlap", Candidate{Start: 660, Duration: 30}, 0, false},
		{"touching start does not overlap", Candidate{Start: 570, Duration: 30}, 0, false},
		{"cancelled appointment ignored", Candidate{Start: 840, Duration: 30}, 0, false},
		{"own record excluded on reschedule", Candidate{Start: 600, Duration: 60}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.candidate, existing, tt.exclude); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlapsCancellationReopensSlot(t *testing.T) {
	booked := []model.Appointment{appt(1, "10:00", 60, model.StatusConfirmed)}
	c := Candidate{Start: 600, Duration: 30}

	if !Overlaps(c, booked, 0) {
		t.Fatal("expected conflict before cancellation")
	}

	booked[0].Status = model.StatusCancelled
	if Overlaps(c, booked, 0) {
		t.Error("cancelled appointment must not occupy its slot")
	}
}

func TestFitsOpenHours(t *testing.T) {
	split := model.DailySchedule{
		OpeningAM: "09:00", ClosingAM: "13:00",
		OpeningPM: "16:00", ClosingPM: "20:00",
	}

	tests := []struct {
		name          string
		hours         model.DailySchedule
		candidate     Candidate
		wantFits      bool
		wantRemaining int
	}{
		{"fits morning", split, Candidate{Start: 540, Duration: 60}, true, 0},
		{"exactly reaches closing", split, Candidate{Start: 750, Duration: 30}, true, 0},
		{"61 minutes at 12:00 against 13:00 close", split, Candidate{Start: 720, Duration: 61}, false, 60},
		{"spans midday closure", split, Candidate{Start: 750, Duration: 240}, false, 30},
		{"fits afternoon", split, Candidate{Start: 960, Duration: 120}, true, 0},
		{"starts during closure", split, Candidate{Start: 840, Duration: 30}, false, 0},
		{"closed day", model.DailySchedule{Closed: true, OpeningAM: "09:00", ClosingAM: "13:00"}, Candidate{Start: 540, Duration: 30}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitsOpenHours(tt.hours, tt.candidate)
			if got.Fits != tt.wantFits {
				t.Errorf("Fits = %v, want %v", got.Fits, tt.wantFits)
			}
			if !got.Fits && got.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", got.Remaining, tt.wantRemaining)
			}
		})
	}
}
