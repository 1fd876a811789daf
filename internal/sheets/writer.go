package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/lildude/workouttracker/internal/model"
)

// Values are written as given, without sheet formula or date parsing.
const valueInputOption = "RAW"

// SheetWriter implements ValueWriter for one worksheet of a spreadsheet
// through the Google Sheets API v4.
type SheetWriter struct {
	service       *gsheets.Service
	spreadsheetID string
	worksheet     string
}

// NewSheetWriter creates a SheetWriter. client should be authenticated, see
// ServiceAccountClient.
func NewSheetWriter(ctx context.Context, client *http.Client, spreadsheetID, worksheet string, opts ...option.ClientOption) (*SheetWriter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets client: %w", err)
	}
	return &SheetWriter{service: srv, spreadsheetID: spreadsheetID, worksheet: worksheet}, nil
}

// ServiceAccountClient returns a client authorised as the service account.
// Tokens are fetched with base, or http.DefaultClient when nil. ctx is kept
// for token refreshes and should outlive the client.
func ServiceAccountClient(ctx context.Context, sa model.ServiceAccount, base *http.Client) (*http.Client, error) {
	b, err := json.Marshal(sa)
	if err != nil {
		return nil, err
	}
	conf, err := google.JWTConfigFromJSON(b, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account: %w", err)
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return conf.Client(ctx), nil
}

func (w *SheetWriter) UpdateValues(ctx context.Context, rangeRef string, values [][]any) error {
	vr := &gsheets.ValueRange{Values: values}
	_, err := w.service.Spreadsheets.Values.Update(w.spreadsheetID, w.qualify(rangeRef), vr).
		ValueInputOption(valueInputOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to update values: %w", err)
	}
	return nil
}

func (w *SheetWriter) UsedRows(ctx context.Context) (int, error) {
	resp, err := w.service.Spreadsheets.Values.Get(w.spreadsheetID, w.qualify("A2:A")).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get values: %w", err)
	}
	return len(resp.Values), nil
}

// qualify prefixes rangeRef with the quoted worksheet name.
func (w *SheetWriter) qualify(rangeRef string) string {
	if w.worksheet == "" {
		return rangeRef
	}
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(w.worksheet, "'", "''"), rangeRef)
}
