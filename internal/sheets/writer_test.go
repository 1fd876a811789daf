package sheets

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/lildude/workouttracker/internal/model"
)

func testWriter(t *testing.T, handler http.HandlerFunc) *SheetWriter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	w, err := NewSheetWriter(context.Background(), srv.Client(), "sheet-123", "Workouts", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return w
}

func TestSheetWriterUpdateValues(t *testing.T) {
	var calls int
	w := testWriter(t, func(rw http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v4/spreadsheets/sheet-123/values/'Workouts'!A1:B1", r.URL.Path)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))

		var body struct {
			Values [][]any `json:"values"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, [][]any{{"id", float64(1704067200000)}}, body.Values)

		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprint(rw, `{"spreadsheetId":"sheet-123","updatedRows":1}`)
	})

	err := w.UpdateValues(context.Background(), "A1:B1", [][]any{{"id", int64(1704067200000)}})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestSheetWriterUpdateValuesError(t *testing.T) {
	w := testWriter(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusForbidden)
		fmt.Fprint(rw, `{"error":{"code":403,"message":"The caller does not have permission"}}`)
	})

	err := w.UpdateValues(context.Background(), "A1:B1", [][]any{{"x"}})
	assert.ErrorContains(t, err, "does not have permission")
}

func TestSheetWriterUsedRows(t *testing.T) {
	w := testWriter(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v4/spreadsheets/sheet-123/values/'Workouts'!A2:A", r.URL.Path)
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprint(rw, `{"range":"Workouts!A2:A4","majorDimension":"ROWS","values":[["1"],["2"],["3"]]}`)
	})

	n, err := w.UsedRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "A1:B1", (&SheetWriter{}).qualify("A1:B1"))
	assert.Equal(t, "'Rider''s log'!A2:C3", (&SheetWriter{worksheet: "Rider's log"}).qualify("A2:C3"))
}

func TestServiceAccountClient(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/token", func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))
		assert.NotEmpty(t, r.PostForm.Get("assertion"))
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprint(rw, `{"access_token":"ya29.sheet","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/data", func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.sheet", r.Header.Get("Authorization"))
	})

	sa := model.ServiceAccount{
		Type:         "service_account",
		ProjectID:    "workouttracker",
		PrivateKeyID: "abc",
		PrivateKey:   string(keyPEM),
		ClientEmail:  "tracker@workouttracker.iam.gserviceaccount.com",
		TokenURI:     srv.URL + "/token",
	}

	hc, err := ServiceAccountClient(context.Background(), sa, srv.Client())
	require.NoError(t, err)

	resp, err := hc.Get(srv.URL + "/data")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServiceAccountClientBadKey(t *testing.T) {
	_, err := ServiceAccountClient(context.Background(), model.ServiceAccount{}, nil)
	assert.Error(t, err)
}
