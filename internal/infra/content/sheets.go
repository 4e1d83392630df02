// internal/infra/content/sheets.go
package content

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"guild_scheduler_bot/internal/domain/apperrors"
	domain "guild_scheduler_bot/internal/domain/content"
)

const maxResponseBytes = 8 << 20

// SheetsSource reads word lists from a Google spreadsheet with one tab per language.
// Columns are word, meaning, example; row 1 is a header.
type SheetsSource struct {
	baseURL       string
	spreadsheetID string
	apiKey        string
	client        *http.Client
	logger        *logrus.Entry
	pick          func(n int) int
}

func NewSheetsSource(baseURL, spreadsheetID, apiKey string, timeout time.Duration, logger *logrus.Entry) *SheetsSource {
	return &SheetsSource{
		baseURL:       strings.TrimRight(baseURL, "/"),
		spreadsheetID: spreadsheetID,
		apiKey:        apiKey,
		client:        &http.Client{Timeout: timeout},
		logger:        logger.WithField("component", "sheets"),
		pick:          rand.IntN,
	}
}

func (s *SheetsSource) RandomEntry(ctx context.Context, language string) (*domain.Entry, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, apperrors.NewConfigurationError("language", "", "required")
	}

	rows, err := s.fetchRows(ctx, language)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		s.logger.WithField("language", language).Warn("Word list has no usable rows")
		return nil, nil
	}
	entry := rows[s.pick(len(rows))]
	return &entry, nil
}

func (s *SheetsSource) fetchRows(ctx context.Context, language string) ([]domain.Entry, error) {
	sheetRange := fmt.Sprintf("'%s'!A2:C", strings.ReplaceAll(language, "'", "''"))
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?key=%s",
		s.baseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(sheetRange), url.QueryEscape(s.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sheets request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sheets request: %v", apperrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read sheets response: %v", apperrors.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest:
		// Sheets answers 400 for a range naming a missing tab.
		return nil, fmt.Errorf("%w: no sheet for language %q: %s", apperrors.ErrLookup, language, gjson.GetBytes(body, "error.message").String())
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: sheets access: %s", apperrors.ErrPermissionDenied, gjson.GetBytes(body, "error.message").String())
	default:
		return nil, fmt.Errorf("%w: sheets returned %d", apperrors.ErrTransient, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: sheets returned invalid JSON", apperrors.ErrTransient)
	}

	var rows []domain.Entry
	gjson.GetBytes(body, "values").ForEach(func(_, row gjson.Result) bool {
		cells := row.Array()
		cell := func(i int) string {
			if i < len(cells) {
				return strings.TrimSpace(cells[i].String())
			}
			return ""
		}
		e := domain.Entry{Word: cell(0), Meaning: cell(1), Example: cell(2)}
		if e.Word != "" && e.Meaning != "" {
			rows = append(rows, e)
		}
		return true
	})
	return rows, nil
}
