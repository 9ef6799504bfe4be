package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"velora/internal/access"
	"velora/internal/booking"
	"velora/internal/calendar"
	"velora/internal/model"
)

type mockScheduleRepo struct {
	mock.Mock
}

func (m *mockScheduleRepo) GetSchedule(ctx context.Context) (*model.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Schedule), args.Error(1)
}

func (m *mockScheduleRepo) SaveWeeklySchedule(ctx context.Context, w model.WeeklySchedule) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *mockScheduleRepo) UpsertSpecialDay(ctx context.Context, sd model.SpecialDay) error {
	args := m.Called(ctx, sd)
	return args.Error(0)
}

func (m *mockScheduleRepo) DeleteSpecialDay(ctx context.Context, date string) error {
	args := m.Called(ctx, date)
	return args.Error(0)
}

type mockCloser struct {
	mock.Mock
}

func (m *mockCloser) CancelDay(ctx context.Context, date, reason string) (int, error) {
	args := m.Called(ctx, date, reason)
	return args.Int(0), args.Error(1)
}

func openHours() model.DailySchedule {
	return model.DailySchedule{
		OpeningAM: "09:00", ClosingAM: "13:00",
		OpeningPM: "16:00", ClosingPM: "20:00",
	}
}

func fullWeek() model.WeeklySchedule {
	w := model.WeeklySchedule{}
	for _, d := range model.WeekDays {
		w[d] = openHours()
	}
	return w
}

var admin = access.Principal{UserID: 1, Name: "Val", Role: access.RoleAdmin}

// Monday 2024-06-03.
var testNow = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockScheduleRepo, closer *mockCloser, horizonDays int) *Service {
	cal := calendar.New(time.UTC, 30)
	svc := NewService(repo, closer, cal, horizonDays, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestUpdateWeekly(t *testing.T) {
	ctx := context.Background()

	t.Run("NonAdminForbidden", func(t *testing.T) {
		svc := newTestService(new(mockScheduleRepo), new(mockCloser), 7)
		user := access.Principal{UserID: 7, Role: access.RoleUser}

		err := svc.UpdateWeekly(ctx, user, fullWeek())
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})

	t.Run("IncompleteWeekRejected", func(t *testing.T) {
		svc := newTestService(new(mockScheduleRepo), new(mockCloser), 7)

		weekly := fullWeek()
		delete(weekly, model.DayJueves)
		err := svc.UpdateWeekly(ctx, admin, weekly)
		assert.Error(t, err)
	})

	t.Run("ClosingAWeekdayCancelsItsDates", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 14)

		repo.On("GetSchedule", ctx).Return(&model.Schedule{Weekly: fullWeek()}, nil)
		repo.On("SaveWeeklySchedule", ctx, mock.Anything).Return(nil)

		// Both Wednesdays inside the 14-day horizon get cancelled.
		closer.On("CancelDay", ctx, "2024-06-05", ClosureReason).Return(2, nil).Once()
		closer.On("CancelDay", ctx, "2024-06-12", ClosureReason).Return(0, nil).Once()

		weekly := fullWeek()
		weekly[model.DayMiercoles] = model.DailySchedule{Closed: true}
		err := svc.UpdateWeekly(ctx, admin, weekly)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
		closer.AssertExpectations(t)
	})

	t.Run("SpecialDayShieldsItsDate", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 7)

		// The override keeps 2024-06-05 open regardless of weekly hours, so
		// closing Wednesdays must not touch it.
		before := &model.Schedule{
			Weekly:      fullWeek(),
			SpecialDays: []model.SpecialDay{{Date: "2024-06-05", Hours: openHours()}},
		}
		repo.On("GetSchedule", ctx).Return(before, nil)
		repo.On("SaveWeeklySchedule", ctx, mock.Anything).Return(nil)

		weekly := fullWeek()
		weekly[model.DayMiercoles] = model.DailySchedule{Closed: true}
		err := svc.UpdateWeekly(ctx, admin, weekly)
		assert.NoError(t, err)
		closer.AssertNotCalled(t, "CancelDay", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("OpeningADayPropagatesNothing", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 14)

		before := fullWeek()
		before[model.DaySabado] = model.DailySchedule{Closed: true}
		repo.On("GetSchedule", ctx).Return(&model.Schedule{Weekly: before}, nil)
		repo.On("SaveWeeklySchedule", ctx, mock.Anything).Return(nil)

		err := svc.UpdateWeekly(ctx, admin, fullWeek())
		assert.NoError(t, err)
		closer.AssertNotCalled(t, "CancelDay", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUpsertSpecialDay(t *testing.T) {
	ctx := context.Background()

	t.Run("ClosingAnOpenDateCancels", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 7)

		repo.On("GetSchedule", ctx).Return(&model.Schedule{Weekly: fullWeek()}, nil)
		sd := model.SpecialDay{Date: "2024-06-05", Hours: model.DailySchedule{Closed: true}}
		repo.On("UpsertSpecialDay", ctx, sd).Return(nil)
		closer.On("CancelDay", ctx, "2024-06-05", ClosureReason).Return(1, nil).Once()

		err := svc.UpsertSpecialDay(ctx, admin, sd)
		assert.NoError(t, err)
		closer.AssertExpectations(t)
	})

	t.Run("AlreadyClosedDateNoPropagation", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 7)

		weekly := fullWeek()
		weekly[model.DayDomingo] = model.DailySchedule{Closed: true}
		repo.On("GetSchedule", ctx).Return(&model.Schedule{Weekly: weekly}, nil)
		// Sunday 2024-06-09 is already closed by the weekly hours.
		sd := model.SpecialDay{Date: "2024-06-09", Hours: model.DailySchedule{Closed: true}}
		repo.On("UpsertSpecialDay", ctx, sd).Return(nil)

		err := svc.UpsertSpecialDay(ctx, admin, sd)
		assert.NoError(t, err)
		closer.AssertNotCalled(t, "CancelDay", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ExtendedHoursNoPropagation", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 7)

		repo.On("GetSchedule", ctx).Return(&model.Schedule{Weekly: fullWeek()}, nil)
		sd := model.SpecialDay{Date: "2024-06-05", Hours: model.DailySchedule{
			OpeningAM: "08:00", ClosingAM: "14:00",
		}}
		repo.On("UpsertSpecialDay", ctx, sd).Return(nil)

		err := svc.UpsertSpecialDay(ctx, admin, sd)
		assert.NoError(t, err)
		closer.AssertNotCalled(t, "CancelDay", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("BadDateRejected", func(t *testing.T) {
		svc := newTestService(new(mockScheduleRepo), new(mockCloser), 7)

		sd := model.SpecialDay{Date: "05/06/2024", Hours: model.DailySchedule{Closed: true}}
		err := svc.UpsertSpecialDay(ctx, admin, sd)
		assert.Error(t, err)
	})
}

func TestDeleteSpecialDay(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesOverride", func(t *testing.T) {
		repo := new(mockScheduleRepo)
		closer := new(mockCloser)
		svc := newTestService(repo, closer, 7)

		repo.On("DeleteSpecialDay", ctx, "2024-06-05").Return(nil)

		err := svc.DeleteSpecialDay(ctx, admin, "2024-06-05")
		assert.NoError(t, err)
		closer.AssertNotCalled(t, "CancelDay", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		svc := newTestService(new(mockScheduleRepo), new(mockCloser), 7)

		user := access.Principal{UserID: 7, Role: access.RoleUser}
		err := svc.DeleteSpecialDay(ctx, user, "2024-06-05")
		assert.ErrorIs(t, err, booking.ErrForbidden)
	})
}
