// Package sheets mirrors the appointment book into a Google spreadsheet so
// the salon staff can see the agenda without touching the API.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"velora/internal/model"
)

const (
	sheetName = "Citas"
	// First data row; row 1 holds the header.
	firstDataRow = 2
)

var headerRow = []interface{}{
	"ID", "Cliente ID", "Cliente", "Fecha", "Hora", "Duración", "Servicios", "Estado", "Creada", "Actualizada",
}

// Source lists appointments for full resyncs.
type Source interface {
	ListByRange(ctx context.Context, from, to string) ([]model.Appointment, error)
}

// SheetsService keeps one spreadsheet in sync with the appointment book.
// Row positions are cached per appointment so updates rewrite in place
// instead of rescanning the sheet.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	source        Source
	logger        zerolog.Logger

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewService authenticates with a service-account credentials file and binds
// to one spreadsheet.
func NewService(ctx context.Context, credentialsPath, spreadsheetID string, source Source, logger zerolog.Logger) (*SheetsService, error) {
	creds, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		source:        source,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[int64]int),
	}, nil
}

// SyncAppointment writes one appointment's row, appending when it has no
// known position yet.
func (s *SheetsService) SyncAppointment(ctx context.Context, a *model.Appointment) error {
	values := appointmentRowValues(a)

	if row, ok := s.getCachedRow(a.ID); ok {
		rng := fmt.Sprintf("%s!A%d", sheetName, row)
		_, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
			Values: [][]interface{}{values},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, sheetName+"!A:J", &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		if row, ok := parseRowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(a.ID, row)
		}
	}
	return nil
}

// RemoveAppointment blanks a cancelled appointment's row. Unknown rows are
// left to the next full resync.
func (s *SheetsService) RemoveAppointment(ctx context.Context, id int64) error {
	row, ok := s.getCachedRow(id)
	if !ok {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:J%d", sheetName, row, row)
	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear row %d: %w", row, err)
	}
	s.deleteCachedRow(id)
	return nil
}

// SyncAll rewrites the whole sheet from storage: header, then every active
// appointment in the range. Cancelled rows disappear on resync.
func (s *SheetsService) SyncAll(ctx context.Context, from, to string) error {
	appts, err := s.source.ListByRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	active := s.filterActiveAppointments(appts)

	rows := make([][]interface{}, 0, len(active)+1)
	rows = append(rows, headerRow)
	for i := range active {
		rows = append(rows, appointmentRowValues(&active[i]))
	}

	if _, err := s.srv.Spreadsheets.Values.Clear(s.spreadsheetID, sheetName+"!A:J", &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	if _, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, sheetName+"!A1", &sheets.ValueRange{
		Values: rows,
	}).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.ClearCache()
	for i := range active {
		s.setCachedRow(active[i].ID, firstDataRow+i)
	}
	s.logger.Info().Int("rows", len(active)).Msg("sheet resynced")
	return nil
}

func (s *SheetsService) filterActiveAppointments(appts []model.Appointment) []model.Appointment {
	active := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status != model.StatusCancelled {
			active = append(active, a)
		}
	}
	return active
}

func appointmentRowValues(a *model.Appointment) []interface{} {
	return []interface{}{
		a.ID,
		a.UserID,
		a.UserName,
		a.Date,
		a.Time,
		a.Duration,
		strings.Join(a.ServiceNames(), ", "),
		string(a.Status),
		a.CreatedAt.Format("2006-01-02 15:04:05"),
		a.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// parseRowFromRange extracts the row number from a range like "Citas!A7:J7".
func parseRowFromRange(rng string) (int, bool) {
	idx := strings.LastIndex(rng, "!")
	if idx < 0 {
		return 0, false
	}
	cell := rng[idx+1:]
	if c := strings.Index(cell, ":"); c >= 0 {
		cell = cell[:c]
	}
	row := 0
	for _, r := range cell {
		if r >= '0' && r <= '9' {
			row = row*10 + int(r-'0')
		}
	}
	if row == 0 {
		return 0, false
	}
	return row, true
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	s.rowCache[id] = row
	s.cacheMu.Unlock()
}

func (s *SheetsService) deleteCachedRow(id int64) {
	s.cacheMu.Lock()
	delete(s.rowCache, id)
	s.cacheMu.Unlock()
}

// ClearCache drops all known row positions.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	s.rowCache = make(map[int64]int)
	s.cacheMu.Unlock()
}

// MirrorLoop resyncs the sheet periodically until ctx is cancelled. The
// window covers today through horizon days ahead.
func (s *SheetsService) MirrorLoop(ctx context.Context, interval time.Duration, horizonDays int, loc *time.Location) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().In(loc)
			from := now.Format(model.DateLayout)
			to := now.AddDate(0, 0, horizonDays).Format(model.DateLayout)
			if err := s.SyncAll(ctx, from, to); err != nil {
				s.logger.Error().Err(err).Msg("sheet resync failed")
			}
		}
	}
}
