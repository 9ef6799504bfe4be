package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"velora/internal/model"
)

type fakeSource struct {
	appts []model.Appointment
}

func (f *fakeSource) ListByRange(_ context.Context, _, _ string) ([]model.Appointment, error) {
	return f.appts, nil
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "Enero_2026.xlsx", Filename(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Diciembre_2025.xlsx", Filename(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestExportSheetPerMonth(t *testing.T) {
	source := &fakeSource{appts: []model.Appointment{
		{ID: 1, Date: "2024-06-10", Time: "10:00", Duration: 30, UserName: "Ana", Status: model.StatusConfirmed},
		{ID: 2, Date: "2024-06-11", Time: "16:00", Duration: 60, UserName: "Luis", Status: model.StatusCompleted},
		{ID: 3, Date: "2024-07-01", Time: "09:00", Duration: 30, UserName: "Eva", Status: model.StatusPending},
	}}
	exporter := NewExporter(source)

	var buf bytes.Buffer
	err := exporter.Export(context.Background(), &buf, "2024-06-01", "2024-07-31")
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Junio 2024", "Julio 2024"}, f.GetSheetList())

	rows, err := f.GetRows("Junio 2024")
	require.NoError(t, err)
	// Header plus two appointments.
	require.Len(t, rows, 3)
	assert.Equal(t, "Fecha", rows[0][0])
	assert.Equal(t, "2024-06-10", rows[1][0])
	assert.Equal(t, "Ana", rows[1][3])
	assert.Equal(t, "confirmed", rows[1][5])

	julio, err := f.GetRows("Julio 2024")
	require.NoError(t, err)
	require.Len(t, julio, 2)
	assert.Equal(t, "Eva", julio[1][3])
}

func TestExportEmptyRange(t *testing.T) {
	exporter := NewExporter(&fakeSource{})

	var buf bytes.Buffer
	err := exporter.Export(context.Background(), &buf, "2024-06-01", "2024-06-30")
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sheet1"}, f.GetSheetList())
}
