// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// SessionExport is the root JSON structure of an exported session
type SessionExport struct {
	ID          string         `json:"id"`
	Aircraft    string         `json:"aircraft"`
	StartedAt   string         `json:"startedAt"`
	EndedAt     string         `json:"endedAt"`
	DurationSec float64        `json:"durationSec"`
	Packets     uint64         `json:"packets"`
	Malformed   uint64         `json:"malformed"`
	Coalesced   uint64         `json:"coalesced"`
	Stale       uint64         `json:"stale"`
	WriteErrors uint64         `json:"writeErrors"`
	PeakMotor   float64        `json:"peakMotor"`
	EventCounts map[string]int `json:"eventCounts"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func buildExport(s *core.Session) SessionExport {
	return SessionExport{
		ID:          s.ID.String(),
		Aircraft:    s.Aircraft,
		StartedAt:   s.StartedAt.Format(timeLayout),
		EndedAt:     s.EndedAt.Format(timeLayout),
		DurationSec: s.Duration().Seconds(),
		Packets:     s.Packets,
		Malformed:   s.Malformed,
		Coalesced:   s.Coalesced,
		Stale:       s.Stale,
		WriteErrors: s.WriteErrors,
		PeakMotor:   s.PeakMotor,
		EventCounts: s.EventCounts,
	}
}

// exportFilename builds session_<aircraft>_<start>.json[.gz].
func exportFilename(s *core.Session, compress bool) string {
	aircraft := s.Aircraft
	if aircraft == "" {
		aircraft = "unknown"
	}
	aircraft = strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_").Replace(aircraft)
	timestamp := s.StartedAt.Format("20060102_150405")

	if compress {
		return fmt.Sprintf("session_%s_%s.json.gz", aircraft, timestamp)
	}
	return fmt.Sprintf("session_%s_%s.json", aircraft, timestamp)
}

// exportJSON writes the session to a JSON file, gzipped when CompressOutput is set.
// Called with b.mu held.
func (b *Backend) exportJSON(s *core.Session) error {
	export := buildExport(s)
	outputPath := filepath.Join(b.cfg.OutputDir, exportFilename(s, b.cfg.CompressOutput))

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
