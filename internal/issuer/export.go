package issuer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ExportFilename is the suggested download name for ExportCSV output.
const ExportFilename = "preview_links.csv"

// TimeLayout is the timestamp format used in exports, in the site timezone.
const TimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{"Client", "Page Title", "Created At", "Expires At", "Token", "Show Info Bar", "Link"}

// ExportCSV writes every stored grant as CSV, one row per grant, in List order.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, e := range entries {
		showBar := "No"
		if e.Grant.ShowBanner {
			showBar = "Yes"
		}
		row := []string{
			e.Grant.ClientName,
			e.Label,
			s.FormatTime(e.Grant.CreatedAt),
			s.FormatTime(e.Grant.ExpiresAt),
			e.Grant.Token,
			showBar,
			e.Link,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// FormatTime renders t in the site timezone.
func (s *Service) FormatTime(t time.Time) string {
	return t.In(s.loc).Format(TimeLayout)
}
