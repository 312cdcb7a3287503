package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/migrate"
	"certline/internal/schedule"
	"certline/internal/standards"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, cfg)
	_, err = e.ImportStandards(context.Background(), standards.Default(), "builtin", "tester")
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func createTest(t *testing.T, srv *testServer, ct string) domain.ElectricalTest {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tests", map[string]any{"certificate_type": ct, "site": "Unit 3"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created domain.ElectricalTest
	require.NoError(t, json.Unmarshal(data, &created))
	return created
}

func TestHealthAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "record-readings")
}

func TestValidateEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/validate", map[string]any{
		"measurement_type": "continuity",
		"value":            1.2,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out domain.ValidationResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.False(t, out.Pass)
	assert.Equal(t, domain.StatusFail, out.Status)
	assert.Equal(t, "BS 7671 Table 41.3", out.StandardReference)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/validate", map[string]any{
		"measurement_type": "polarity",
		"value":            1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "not_numeric", errorCode(t, data))

	for _, v := range []float64{-5, 0} {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/validate", map[string]any{
			"measurement_type": "continuity",
			"value":            v,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, "value %v", v)
		assert.Equal(t, "bad_request", errorCode(t, data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/standards/lookup?measurement_type=earth_loop&circuit_rating=32", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var found StandardLookupResponse
	require.NoError(t, json.Unmarshal(data, &found))
	require.True(t, found.Found)
	assert.Equal(t, "32A", found.Standard.CircuitRating)
}

func TestReadingsFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tst := createTest(t, srv, "eic")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tests/"+tst.ID+"/circuits", map[string]any{
		"ref":                       "1",
		"circuit_type":              "ring final",
		"overcurrent_device_rating": "32",
	}, map[string]string{"X-Actor-Id": "sparky"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var c domain.Circuit
	require.NoError(t, json.Unmarshal(data, &c))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tests/"+tst.ID+"/circuits/"+c.ID+"/readings", map[string]any{
		"readings": map[string]string{"continuity": "0.2", "insulation": "", "earth_loop": "1.5"},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var rec engine.RecordResult
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Len(t, rec.Measurements, 2)
	assert.Len(t, rec.Skipped, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tests/"+tst.ID+"/measurements?status=fail", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ms MeasurementListResponse
	require.NoError(t, json.Unmarshal(data, &ms))
	require.Len(t, ms.Items, 1)
	assert.Equal(t, domain.MeasurementEarthLoop, ms.Items[0].Type)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tests/"+tst.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var detail TestDetailResponse
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, tst.ID, detail.ID)
	assert.Len(t, detail.Circuits, 1)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?test_id="+tst.ID+"&type=circuit.added", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts paginatedEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "sparky", evts.Items[0].ActorID)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tests/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))
}

func TestInspectionEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tst := createTest(t, srv, "minor_works")
	base := srv.URL + "/v0/tests/" + tst.ID

	res, data := doJSON(t, client, http.MethodPost, base+"/inspection", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view engine.ChecklistView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Len(t, view.Items, 10)

	res, data = doJSON(t, client, http.MethodPatch, base+"/inspection/items/XYZ-99", map[string]any{"result": "pass"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_item_code", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPatch, base+"/inspection/items/MW-01", map[string]any{"result": "fail"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "ineligible_save", errorCode(t, data))

	res, data = doJSON(t, client, http.MethodPatch, base+"/inspection/items/MW-01", map[string]any{"result": "fail", "notes": "no bonding"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/complete", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "certificate_ineligible", errorCode(t, data))

	items := []map[string]any{{"item_code": "MW-02", "result": "maybe"}}
	for _, it := range view.Items[1:] {
		items = append(items, map[string]any{"item_code": it.ItemCode, "result": "pass"})
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/inspection/save", map[string]any{"items": items}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var report schedule.BatchReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Saved, 9)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, schedule.ReasonInvalidResult, report.Failures[0].Reason)

	res, data = doJSON(t, client, http.MethodGet, base+"/certificate", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var sum engine.CertificateSummary
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.True(t, sum.Eligible)
	assert.Equal(t, 100, sum.Progress.Percent)

	res, data = doJSON(t, client, http.MethodPost, base+"/complete", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, base+"/circuits", map[string]any{"ref": "2"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "test_complete", errorCode(t, data))
}

func TestTemplatesEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/templates/eic", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tpl TemplateResponse
	require.NoError(t, json.Unmarshal(data, &tpl))
	assert.Len(t, tpl.Items, 27)
	assert.Len(t, tpl.Categories, 9)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/templates/periodic", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "unknown_certificate_type", errorCode(t, data))
}

func TestImportStandardsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/standards", map[string]any{
		"standards": []map[string]any{
			{"measurement_type": "voltage", "min_acceptable": 300, "max_acceptable": 200, "standard_reference": "bad"},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_standard", errorCode(t, data))

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/standards", map[string]any{
		"standards": []map[string]any{
			{"measurement_type": "voltage", "min_acceptable": 207, "max_acceptable": 253, "standard_reference": "Site supply"},
		},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/standards", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list StandardsResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Site supply", list.Items[0].StandardReference)
}
