package certlinesdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/app"
	"certline/internal/server"
	certlinesdk "certline/sdk/go"
)

func newClient(t *testing.T) *certlinesdk.Client {
	t.Helper()
	ws, err := app.Open(context.Background(), t.TempDir(), "tester")
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	handler, err := server.New(server.Config{Engine: ws.Engine})
	require.NoError(t, err)
	hs := httptest.NewServer(handler)
	t.Cleanup(hs.Close)
	return certlinesdk.New(hs.URL, "sdk-user")
}

func ptr(s string) *string { return &s }

func TestClient_EndToEnd(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	tst, err := c.CreateTest(ctx, "minor_works", "Flat 2")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", tst.Status)

	circuit, err := c.AddCircuit(ctx, tst.ID, certlinesdk.Circuit{Ref: "3", CircuitType: "radial", OvercurrentDeviceRating: "16A"})
	require.NoError(t, err)
	readings, err := c.RecordReadings(ctx, tst.ID, circuit.ID, map[string]string{"earth_loop": "2.0", "rcd_trip_time": "25"})
	require.NoError(t, err)
	require.Len(t, readings.Measurements, 2)

	res, err := c.Validate(ctx, "insulation", 0.5, "", "")
	require.NoError(t, err)
	assert.Equal(t, "fail", res.Status)

	checklist, err := c.StartInspection(ctx, tst.ID)
	require.NoError(t, err)
	require.Len(t, checklist.Items, 10)

	_, err = c.SetItem(ctx, tst.ID, certlinesdk.ItemUpdate{ItemCode: "MW-01", Result: ptr("limitation")})
	var apiErr *certlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "ineligible_save", apiErr.Code)

	var updates []certlinesdk.ItemUpdate
	for _, it := range checklist.Items {
		updates = append(updates, certlinesdk.ItemUpdate{ItemCode: it.ItemCode, Result: ptr("pass")})
	}
	report, err := c.SaveItems(ctx, tst.ID, updates)
	require.NoError(t, err)
	assert.Len(t, report.Saved, 10)
	assert.Empty(t, report.Failures)

	status, err := c.CertificateStatus(ctx, tst.ID)
	require.NoError(t, err)
	assert.True(t, status.Eligible)
	assert.Equal(t, 0, status.FailingMeasurements)

	done, err := c.CompleteTest(ctx, tst.ID)
	require.NoError(t, err)
	assert.Equal(t, "complete", done.Status)

	detail, err := c.GetTest(ctx, tst.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Circuits, 1)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "test.completed", page.Items[0].Type)
	assert.Equal(t, "sdk-user", page.Items[0].ActorID)
	require.NotEmpty(t, page.NextCursor)
	next, err := c.EventsPage(ctx, 2, page.NextCursor)
	require.NoError(t, err)
	assert.Less(t, next.Items[0].ID, page.Items[1].ID)

	listed, err := c.ListTests(ctx, "complete")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
