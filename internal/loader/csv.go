package loader

import (
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/plexwatch/histview/pkg/models"
)

// LoadCSV materializes the raw history table from a merged Tautulli CSV
// export. It returns the rows in file order plus a content fingerprint
// that identifies this exact snapshot for caching.
//
// Structural problems (unreadable file, broken CSV framing, an empty
// file with no header) fail the whole load; the content of individual
// fields is not inspected here at all, that is the normalizer's job.
func LoadCSV(path string) ([]models.RawRow, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	reader := csv.NewReader(io.TeeReader(file, hash))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, "", fmt.Errorf("history file %s is empty", path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read header: %w", err)
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}

		row := make(models.RawRow, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, Fingerprint(hash.Sum(nil)), nil
}

// Fingerprint renders a content hash as the short dataset identifier
// used in cache keys and logs.
func Fingerprint(sum []byte) string {
	return fmt.Sprintf("%x", sum[:8])
}
