package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"unibridge-points/logging"
)

var exportHeader = []string{"Wallet Address", "Total Points", "Signup Date", "Referred By"}

// Archiver keeps a copy of an export somewhere durable.
type Archiver interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ExportRow is one line of the full-dataset export.
type ExportRow struct {
	Wallet      string
	TotalPoints int64
	SignupDate  *time.Time
	ReferredBy  string
}

// ExportService produces the admin export of every wallet's points.
type ExportService struct {
	Ledger   *LedgerStore
	Profiles *ProfileStore
	Archiver Archiver // nil disables archiving
}

func NewExportService(ledger *LedgerStore, profiles *ProfileStore, archiver Archiver) *ExportService {
	return &ExportService{Ledger: ledger, Profiles: profiles, Archiver: archiver}
}

// Rows lists every wallet with a profile or a ledger entry, by total points
// descending then wallet ascending.
func (s *ExportService) Rows(ctx context.Context) ([]ExportRow, error) {
	sums, err := s.Ledger.SumAllByCategory(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := s.Profiles.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	rows := make(map[string]*ExportRow, len(profiles)+len(sums))
	for _, p := range profiles {
		row := &ExportRow{Wallet: p.Wallet}
		created := p.CreatedAt
		row.SignupDate = &created
		if p.ReferredBy != nil {
			row.ReferredBy = *p.ReferredBy
		}
		rows[p.Wallet] = row
	}
	for wallet, byCat := range sums {
		row, ok := rows[wallet]
		if !ok {
			row = &ExportRow{Wallet: wallet}
			rows[wallet] = row
		}
		for _, pts := range byCat {
			row.TotalPoints += pts
		}
	}

	out := make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].Wallet < out[j].Wallet
	})
	return out, nil
}

// WriteCSV renders rows with the export header. Wallets without a referrer
// show "Direct".
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		signup := ""
		if r.SignupDate != nil {
			signup = r.SignupDate.UTC().Format(time.RFC3339)
		}
		referrer := r.ReferredBy
		if referrer == "" {
			referrer = "Direct"
		}
		if err := cw.Write([]string{r.Wallet, strconv.FormatInt(r.TotalPoints, 10), signup, referrer}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportResult is a rendered export and, when archived, where it lives.
type ExportResult struct {
	Rows     int    `json:"rows"`
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
	CSV      []byte `json:"-"`
}

// Export renders the CSV and uploads it when archive is set and an
// archiver is configured.
func (s *ExportService) Export(ctx context.Context, archive bool) (ExportResult, error) {
	rows, err := s.Rows(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{
		Rows:     len(rows),
		Filename: "points-export-" + time.Now().UTC().Format("20060102-150405") + ".csv",
		CSV:      buf.Bytes(),
	}
	if !archive {
		return result, nil
	}
	if s.Archiver == nil {
		return result, validationf("export archiving is not configured")
	}
	url, err := s.Archiver.Upload(ctx, "exports/"+result.Filename, result.CSV, "text/csv")
	if err != nil {
		return result, unavailable(err, "archive export")
	}
	result.URL = url
	logging.Logger.Info("[EXPORT] export archived", zap.String("url", url), zap.Int("rows", result.Rows))
	return result, nil
}
