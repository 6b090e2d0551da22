package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of sessions in the requested format.
func formatSessions(sessions []sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionsJSON(sessions)
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSession renders a single session in the requested format.
func formatSession(session *sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionJSON(session)
	case formatTable:
		return formatSessionDetail(session), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatSessionsTable(sessions []sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DESIGNATOR\tTRANSPORT\tEXPORTS\tIMPORTS")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Designator, s.Transport, s.ExportTableSize, s.ImportTableSize)
	}

	_ = w.Flush()

	return buf.String()
}

func formatSessionDetail(s *sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Designator:\t%s\n", s.Designator)
	fmt.Fprintf(w, "Transport:\t%s\n", s.Transport)
	fmt.Fprintf(w, "Export Table Size:\t%d\n", s.ExportTableSize)
	fmt.Fprintf(w, "Import Table Size:\t%d\n", s.ImportTableSize)

	_ = w.Flush()

	return buf.String()
}

// --- JSON formatters ---

func formatSessionsJSON(sessions []sessionView) (string, error) {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sessions to JSON: %w", err)
	}

	return string(data), nil
}

func formatSessionJSON(session *sessionView) (string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session to JSON: %w", err)
	}

	return string(data), nil
}
