// Package importer loads the feed catalog from CSV or YAML files into
// the feeds table.
package importer

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"firefeed/pipeline/internal/models"
	"firefeed/pipeline/internal/storage"
)

// defaults applied to rows that leave the limits blank.
const (
	defaultCooldownMinutes = 60
	defaultMaxNewsPerHour  = 10
)

// Importer handles the feed catalog import process.
type Importer struct {
	repo *storage.Repository
}

// NewImporter creates a new feed importer.
func NewImporter(repo *storage.Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportFeeds imports feeds from a catalog file, dispatching on the file
// extension: .yaml/.yml parse as YAML, anything else as CSV.
func (i *Importer) ImportFeeds(ctx context.Context, path string) error {
	log.Info().Str("path", path).Msg("Starting feed import")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = i.importYAML(ctx, f)
	default:
		err = i.importCSV(ctx, f)
	}
	if err != nil {
		return fmt.Errorf("failed to import feeds: %w", err)
	}

	log.Info().Msg("Import completed successfully")
	return nil
}

// catalogEntry is one feed definition in a YAML catalog.
type catalogEntry struct {
	URL             string `yaml:"url"`
	Name            string `yaml:"name"`
	Language        string `yaml:"language"`
	Source          string `yaml:"source"`
	Category        string `yaml:"category"`
	CooldownMinutes *int   `yaml:"cooldown_minutes"`
	MaxNewsPerHour  *int   `yaml:"max_news_per_hour"`
	Active          *bool  `yaml:"active"`
}

func (i *Importer) importYAML(ctx context.Context, r io.Reader) error {
	var catalog struct {
		Feeds []catalogEntry `yaml:"feeds"`
	}
	if err := yaml.NewDecoder(r).Decode(&catalog); err != nil {
		return fmt.Errorf("failed to decode YAML catalog: %w", err)
	}

	successCount := 0
	var importErrors []string

	for idx, entry := range catalog.Feeds {
		if entry.URL == "" {
			importErrors = append(importErrors, fmt.Sprintf("entry %d: empty URL", idx+1))
			continue
		}

		feed := models.NewFeed()
		feed.URL = entry.URL
		feed.Name = entry.Name
		if entry.Language != "" {
			feed.Language = entry.Language
		}
		feed.Source = nullString(entry.Source)
		feed.Category = nullString(entry.Category)
		feed.CooldownMinutes = defaultCooldownMinutes
		if entry.CooldownMinutes != nil {
			feed.CooldownMinutes = *entry.CooldownMinutes
		}
		feed.MaxNewsPerHour = defaultMaxNewsPerHour
		if entry.MaxNewsPerHour != nil {
			feed.MaxNewsPerHour = *entry.MaxNewsPerHour
		}
		if entry.Active != nil {
			feed.IsActive = *entry.Active
		}

		if err := i.repo.InsertFeed(ctx, feed); err != nil {
			log.Error().Err(err).Str("url", feed.URL).Msg("Failed to insert feed")
			importErrors = append(importErrors, fmt.Sprintf("entry %d: %v", idx+1, err))
			continue
		}
		successCount++
	}

	reportSummary(len(catalog.Feeds), successCount, importErrors)
	return nil
}

func (i *Importer) importCSV(ctx context.Context, r io.Reader) error {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return err
	}

	log.Debug().Strs("header", header).Msg("CSV header read")

	for _, required := range []string{"url", "language"} {
		if findColumnIndex(header, required) < 0 {
			return fmt.Errorf("required column '%s' not found in CSV header", required)
		}
	}

	urlIdx := findColumnIndex(header, "url")
	nameIdx := findColumnIndex(header, "name")
	languageIdx := findColumnIndex(header, "language")
	sourceIdx := findColumnIndex(header, "source")
	categoryIdx := findColumnIndex(header, "category")
	cooldownIdx := findColumnIndex(header, "cooldown_minutes")
	maxPerHourIdx := findColumnIndex(header, "max_news_per_hour")
	statusIdx := findColumnIndex(header, "status")

	lineCount := 1 // Header was already read
	successCount := 0
	var importErrors []string

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			log.Debug().Int("line", lineCount).Msg("Skipping empty row")
			continue
		}

		feed := models.NewFeed()
		feed.URL = safeGetValue(record, urlIdx).String
		feed.Name = safeGetValue(record, nameIdx).String
		if lang := safeGetValue(record, languageIdx); lang.Valid {
			feed.Language = lang.String
		}
		feed.Source = safeGetValue(record, sourceIdx)
		feed.Category = safeGetValue(record, categoryIdx)
		feed.CooldownMinutes = intColumn(record, cooldownIdx, defaultCooldownMinutes)
		feed.MaxNewsPerHour = intColumn(record, maxPerHourIdx, defaultMaxNewsPerHour)
		if status := safeGetValue(record, statusIdx); status.Valid {
			feed.IsActive = strings.EqualFold(status.String, "active")
		}

		if feed.URL == "" {
			log.Warn().Int("line", lineCount).Msg("Skipping row with empty URL")
			importErrors = append(importErrors, fmt.Sprintf("line %d: empty URL", lineCount))
			continue
		}

		logger := log.With().
			Int("line", lineCount).
			Str("url", feed.URL).
			Str("language", feed.Language).
			Logger()

		logger.Debug().Msg("Processing feed")

		if err := i.repo.InsertFeed(ctx, feed); err != nil {
			logger.Error().Err(err).Msg("Failed to insert feed")
			importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		successCount++
		logger.Debug().Msg("Feed inserted successfully")
	}

	reportSummary(lineCount-1, successCount, importErrors)
	return nil
}

func reportSummary(total, success int, importErrors []string) {
	log.Info().
		Int("total", total).
		Int("success", success).
		Int("errors", len(importErrors)).
		Msg("Import summary")

	fmt.Printf("Imported %d feeds successfully\n", success)
	if len(importErrors) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(importErrors))
		for _, e := range importErrors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(col, columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns a sql.NullString from a record at the specified index.
// If the index is out of bounds or the value is empty, it returns an invalid NullString.
func safeGetValue(record []string, index int) sql.NullString {
	if index >= 0 && index < len(record) && record[index] != "" {
		return sql.NullString{
			String: record[index],
			Valid:  true,
		}
	}
	return sql.NullString{Valid: false}
}

func intColumn(record []string, index, fallback int) int {
	raw := safeGetValue(record, index)
	if !raw.Valid {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw.String))
	if err != nil {
		return fallback
	}
	return n
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
