package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	domain "github.com/eurocoin-catalog/api/internal/domain"
	"github.com/eurocoin-catalog/api/internal/repositories"
)

const (
	maxImportRows   = 20000
	exportSheetName = "Catalog"
	eventIDPrefix   = "evt_"

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// catalogCSVHeaders is the column layout shared by uploads and exports.
var catalogCSVHeaders = []string{"type", "year", "country", "series", "value", "id", "image", "feature", "volume"}

var (
	// ErrCatalogImportEmpty indicates the upload carried no importable rows.
	ErrCatalogImportEmpty = errors.New("catalog import: nothing to import")
	// ErrCatalogImportInvalidCSV indicates the upload is not a catalog CSV.
	ErrCatalogImportInvalidCSV = errors.New("catalog import: invalid csv")
	// ErrCatalogExportEmpty indicates there are no coins to export.
	ErrCatalogExportEmpty = errors.New("catalog export: catalog is empty")
	// ErrCatalogExportFormat indicates an unsupported export format.
	ErrCatalogExportFormat = errors.New("catalog export: unsupported format")
	// ErrCatalogExportUploadUnavailable indicates uploads were requested without an exports bucket.
	ErrCatalogExportUploadUnavailable = errors.New("catalog export: upload not configured")
)

// CatalogImportServiceDeps bundles constructor inputs for the import service.
type CatalogImportServiceDeps struct {
	Catalog     repositories.CatalogRepository
	Invalidator CatalogInvalidator
	Publisher   CatalogEventPublisher
	Uploader    ExportUploader
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogImportService struct {
	repo        repositories.CatalogRepository
	invalidator CatalogInvalidator
	publisher   CatalogEventPublisher
	uploader    ExportUploader
	logger      *zap.Logger
	clock       func() time.Time
	newID       func() string
	sanitizer   *bluemonday.Policy
}

var _ CatalogImportService = (*catalogImportService)(nil)

// NewCatalogImportService constructs the admin import service.
func NewCatalogImportService(deps CatalogImportServiceDeps) (CatalogImportService, error) {
	if deps.Catalog == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	if deps.Invalidator == nil {
		return nil, errors.New("catalog import service: invalidator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &catalogImportService{
		repo:        deps.Catalog,
		invalidator: deps.Invalidator,
		publisher:   deps.Publisher,
		uploader:    deps.Uploader,
		logger:      logger,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		sanitizer:   bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogImportService) Preview(ctx context.Context, r io.Reader) (ImportPreview, error) {
	if r == nil {
		return ImportPreview{}, fmt.Errorf("%w: empty upload", ErrCatalogImportInvalidCSV)
	}
	rows, err := s.parseRows(r)
	if err != nil {
		return ImportPreview{}, err
	}
	if len(rows) == 0 {
		return ImportPreview{}, ErrCatalogImportEmpty
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Status != ImportRowInvalid {
			ids = append(ids, row.Coin.ID)
		}
	}
	existing := map[string]struct{}{}
	if len(ids) > 0 {
		existing, err = s.repo.ExistingIDs(ctx, ids)
		if err != nil {
			return ImportPreview{}, mapCatalogRepoError("lookup existing ids", err)
		}
	}

	preview := ImportPreview{Rows: rows}
	seen := make(map[string]int, len(rows))
	for i := range preview.Rows {
		row := &preview.Rows[i]
		if row.Status == ImportRowInvalid {
			preview.Invalid++
			continue
		}
		if _, ok := existing[row.Coin.ID]; ok {
			row.Status = ImportRowDuplicate
			row.Reason = "id already in catalog"
		} else if line, ok := seen[row.Coin.ID]; ok {
			row.Status = ImportRowDuplicate
			row.Reason = fmt.Sprintf("id repeats line %d", line)
		} else {
			row.Status = ImportRowNew
			seen[row.Coin.ID] = row.Line
		}
		if row.Status == ImportRowNew {
			preview.New++
		} else {
			preview.Duplicates++
		}
	}
	return preview, nil
}

func (s *catalogImportService) Import(ctx context.Context, cmd ImportCommand) (ImportResult, error) {
	if len(bytes.TrimSpace(cmd.Data)) == 0 {
		return ImportResult{}, ErrCatalogImportEmpty
	}
	preview, err := s.Preview(ctx, bytes.NewReader(cmd.Data))
	if err != nil {
		return ImportResult{}, err
	}

	var selected map[string]struct{}
	if len(cmd.SelectedIDs) > 0 {
		selected = make(map[string]struct{}, len(cmd.SelectedIDs))
		for _, id := range cmd.SelectedIDs {
			if id = strings.TrimSpace(id); id != "" {
				selected[id] = struct{}{}
			}
		}
	}

	now := s.clock()
	coins := make([]Coin, 0, preview.New)
	for _, row := range preview.Rows {
		if row.Status != ImportRowNew {
			continue
		}
		if selected != nil {
			if _, ok := selected[row.Coin.ID]; !ok {
				continue
			}
		}
		coin := row.Coin
		coin.CreatedAt = now
		coin.UpdatedAt = now
		coins = append(coins, coin)
	}
	if len(coins) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no new coins selected", ErrCatalogImportEmpty)
	}

	inserted, err := s.repo.Insert(ctx, coins)
	if err != nil {
		if inserted > 0 {
			s.invalidator.Invalidate(ctx)
		}
		return ImportResult{}, mapCatalogRepoError("insert coins", err)
	}
	s.invalidator.Invalidate(ctx)

	result := ImportResult{
		BatchID:  s.newID(),
		Inserted: inserted,
		Skipped:  len(preview.Rows) - inserted,
	}
	result.EventID = s.publish(ctx, CatalogEvent{
		Kind:     CatalogEventImported,
		BatchID:  result.BatchID,
		Inserted: result.Inserted,
		Skipped:  result.Skipped,
		Actor:    cmd.Actor,
	})
	s.logger.Info("catalog import completed",
		zap.String("batchId", result.BatchID),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.String("actor", cmd.Actor),
	)
	return result, nil
}

func (s *catalogImportService) Export(ctx context.Context, cmd ExportCommand) (ExportResult, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(string(cmd.Format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatXLSX {
		return ExportResult{}, fmt.Errorf("%w: %q", ErrCatalogExportFormat, cmd.Format)
	}
	if cmd.Upload && s.uploader == nil {
		return ExportResult{}, ErrCatalogExportUploadUnavailable
	}

	coins, err := s.repo.All(ctx)
	if err != nil {
		return ExportResult{}, mapCatalogRepoError("export coins", err)
	}
	if len(coins) == 0 {
		return ExportResult{}, ErrCatalogExportEmpty
	}
	coins = append([]Coin(nil), coins...)
	sortForExport(coins)

	result := ExportResult{
		FileName: fmt.Sprintf("coins_export_%s.%s", s.clock().Format("20060102T150405Z"), format),
		Rows:     len(coins),
	}
	switch format {
	case ExportFormatXLSX:
		result.ContentType = contentTypeXLSX
		result.Data, err = renderXLSX(coins)
	default:
		result.ContentType = contentTypeCSV
		result.Data, err = renderCSV(coins)
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("catalog export: render %s: %w", format, err)
	}

	if cmd.Upload {
		location, err := s.uploader.StoreExport(ctx, result.FileName, result.ContentType, result.Data)
		if err != nil {
			return ExportResult{}, fmt.Errorf("catalog export: upload: %w", err)
		}
		result.Location = &location
	}
	return result, nil
}

func (s *catalogImportService) Reset(ctx context.Context, cmd ResetCommand) (ResetResult, error) {
	if err := s.repo.Reset(ctx); err != nil {
		return ResetResult{}, mapCatalogRepoError("reset catalog", err)
	}
	s.invalidator.Invalidate(ctx)
	result := ResetResult{ResetAt: s.clock()}
	result.EventID = s.publish(ctx, CatalogEvent{Kind: CatalogEventReset, Actor: cmd.Actor})
	s.logger.Warn("catalog reset", zap.String("actor", cmd.Actor))
	return result, nil
}

func (s *catalogImportService) InvalidateCache(ctx context.Context, cmd InvalidateCacheCommand) (string, error) {
	s.invalidator.Invalidate(ctx)
	return s.publish(ctx, CatalogEvent{Kind: CatalogEventCacheInvalidated, Actor: cmd.Actor}), nil
}

// publish is best effort: the write it announces has already happened.
func (s *catalogImportService) publish(ctx context.Context, event CatalogEvent) string {
	if s.publisher == nil {
		return ""
	}
	event.ID = eventIDPrefix + s.newID()
	event.OccurredAt = s.clock()
	if _, err := s.publisher.PublishCatalogEvent(ctx, event); err != nil {
		s.logger.Warn("catalog event publish failed",
			zap.String("kind", string(event.Kind)),
			zap.String("eventId", event.ID),
			zap.Error(err),
		)
		return ""
	}
	return event.ID
}

// ParseCatalogCSV reads a catalog CSV without consulting a repository. Rows failing validation are
// returned with ImportRowInvalid and a reason.
func ParseCatalogCSV(r io.Reader) ([]ImportRow, error) {
	parser := &catalogImportService{sanitizer: bluemonday.StrictPolicy()}
	return parser.parseRows(r)
}

func (s *catalogImportService) parseRows(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrCatalogImportEmpty
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogImportInvalidCSV, err)
	}
	columns, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogImportInvalidCSV, err)
		}
		line, _ := reader.FieldPos(0)
		if isBlankRecord(record) {
			continue
		}
		if len(rows) >= maxImportRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrCatalogImportInvalidCSV, maxImportRows)
		}
		rows = append(rows, s.parseRow(line, record, columns))
	}
	return rows, nil
}

func (s *catalogImportService) parseRow(line int, record []string, columns map[string]int) ImportRow {
	field := func(name string) string {
		idx := columns[name]
		if idx >= len(record) {
			return ""
		}
		return s.sanitize(record[idx])
	}
	row := ImportRow{Line: line, Status: ImportRowNew}
	invalid := func(reason string) ImportRow {
		row.Status = ImportRowInvalid
		row.Reason = reason
		return row
	}

	coinType, ok := domain.ParseCoinType(field("type"))
	if !ok {
		return invalid("type must be RE or CC")
	}
	year, err := strconv.Atoi(field("year"))
	if err != nil || year <= 0 {
		return invalid("year must be a positive integer")
	}
	value, err := strconv.ParseFloat(field("value"), 64)
	if err != nil || value <= 0 {
		return invalid("value must be a positive number")
	}
	row.Coin = Coin{
		ID:       field("id"),
		Type:     coinType,
		Year:     year,
		Country:  strings.ToUpper(field("country")),
		Series:   field("series"),
		Value:    value,
		ImageURL: field("image"),
		Feature:  field("feature"),
		Volume:   field("volume"),
	}
	switch {
	case row.Coin.ID == "":
		return invalid("id is required")
	case row.Coin.Country == "":
		return invalid("country is required")
	case row.Coin.Series == "":
		return invalid("series is required")
	}
	return row
}

// sanitize strips markup from a CSV cell and undoes the entity escaping bluemonday applies to text.
func (s *catalogImportService) sanitize(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func headerIndex(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range catalogCSVHeaders {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing headers %s", ErrCatalogImportInvalidCSV, strings.Join(missing, ", "))
	}
	return columns, nil
}

func isBlankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// sortForExport orders by year, series, then country, all ascending.
func sortForExport(coins []Coin) {
	sort.SliceStable(coins, func(i, j int) bool {
		a, b := coins[i], coins[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		return a.Country < b.Country
	})
}

func exportRecord(coin Coin) []string {
	return []string{
		string(coin.Type),
		strconv.Itoa(coin.Year),
		coin.Country,
		coin.Series,
		strconv.FormatFloat(coin.Value, 'f', -1, 64),
		coin.ID,
		coin.ImageURL,
		coin.Feature,
		coin.Volume,
	}
}

func renderCSV(coins []Coin) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(catalogCSVHeaders); err != nil {
		return nil, err
	}
	for _, coin := range coins {
		if err := writer.Write(exportRecord(coin)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(coins []Coin) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSheetName); err != nil {
		return nil, err
	}
	header := make([]any, len(catalogCSVHeaders))
	for i, name := range catalogCSVHeaders {
		header[i] = name
	}
	if err := file.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := file.SetRowStyle(exportSheetName, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, coin := range coins {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			string(coin.Type), coin.Year, coin.Country, coin.Series, coin.Value,
			coin.ID, coin.ImageURL, coin.Feature, coin.Volume,
		}
		if err := file.SetSheetRow(exportSheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	lastCell, err := excelize.CoordinatesToCellName(len(catalogCSVHeaders), len(coins)+1)
	if err != nil {
		return nil, err
	}
	if err := file.AutoFilter(exportSheetName, "A1:"+lastCell, nil); err != nil {
		return nil, err
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
