package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"decoyftp/internal/database"
	"decoyftp/internal/model"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// clip shortens an identifier for display. Rows from hand-edited or foreign
// databases can be shorter than the usual hash length.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// newReportTable builds a borderless left-aligned table for report output.
func newReportTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	headerCells := make([]any, len(headers))
	for i, h := range headers {
		headerCells[i] = h
	}
	table.Header(headerCells...)
	table.Options(
		tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
		cfg.Row = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
	})
	return table
}

func renderSessions(sessions []model.SessionRecord) error {
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	table := newReportTable("Session", "Remote", "Started", "Duration")
	for _, s := range sessions {
		duration := "open"
		if s.EndTime != nil {
			duration = s.EndTime.Sub(s.StartTime).Truncate(time.Second).String()
		}
		if err := table.Append([]string{
			clip(s.ID, 8),
			s.RemoteAddr,
			s.StartTime.Format("2006-01-02 15:04:05"),
			duration,
		}); err != nil {
			return fmt.Errorf("rendering sessions: %w", err)
		}
	}
	return table.Render()
}

func renderCredentials(creds []database.CredentialCount) error {
	if len(creds) == 0 {
		fmt.Println("No credential attempts recorded.")
		return nil
	}

	table := newReportTable("Username", "Password", "Attempts", "Accepted")
	for _, c := range creds {
		if err := table.Append([]string{
			c.Username,
			c.Password,
			strconv.FormatInt(c.Attempts, 10),
			strconv.FormatInt(c.Accepted, 10),
		}); err != nil {
			return fmt.Errorf("rendering credentials: %w", err)
		}
	}
	return table.Render()
}

func renderArtifacts(artifacts []model.Artifact) error {
	if len(artifacts) == 0 {
		fmt.Println("No artifacts recorded.")
		return nil
	}

	table := newReportTable("Hash", "Size", "Uploads", "First Seen", "Last Seen")
	for _, a := range artifacts {
		if err := table.Append([]string{
			clip(a.Hash, 12),
			strconv.FormatInt(a.Size, 10),
			strconv.FormatInt(a.OccurrenceCount, 10),
			a.FirstSeen.Format("2006-01-02 15:04:05"),
			a.LastSeen.Format("2006-01-02 15:04:05"),
		}); err != nil {
			return fmt.Errorf("rendering artifacts: %w", err)
		}
	}
	return table.Render()
}
