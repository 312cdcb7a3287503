package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/domain"
)

func res(r domain.InspectionResult) *domain.InspectionResult { return &r }
func str(s string) *string                                  { return &s }

func TestIsSaveEligible(t *testing.T) {
	tests := []struct {
		name string
		item domain.InspectionItem
		want bool
	}{
		{name: "fail without notes", item: domain.InspectionItem{Result: domain.ResultFail, Notes: ""}, want: false},
		{name: "fail with blank notes", item: domain.InspectionItem{Result: domain.ResultFail, Notes: "  "}, want: false},
		{name: "fail with notes", item: domain.InspectionItem{Result: domain.ResultFail, Notes: "cracked conduit"}, want: true},
		{name: "limitation without notes", item: domain.InspectionItem{Result: domain.ResultLimitation, Notes: "\t\n"}, want: false},
		{name: "limitation with notes", item: domain.InspectionItem{Result: domain.ResultLimitation, Notes: "loft not accessible"}, want: true},
		{name: "pass without notes", item: domain.InspectionItem{Result: domain.ResultPass}, want: true},
		{name: "n/a without notes", item: domain.InspectionItem{Result: domain.ResultNA}, want: true},
		{name: "no result", item: domain.InspectionItem{Notes: "looked fine"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSaveEligible(tt.item))
		})
	}
}

func TestCheckSave_Errors(t *testing.T) {
	err := CheckSave(domain.InspectionItem{ItemCode: "EIC-10", Result: domain.ResultFail})
	require.ErrorIs(t, err, ErrIneligibleSave)
	assert.EqualError(t, err, "item EIC-10 marked fail requires notes")

	err = CheckSave(domain.InspectionItem{ItemCode: "EIC-10"})
	assert.EqualError(t, err, "item EIC-10 has no result")
}

func TestSaveItem(t *testing.T) {
	c, err := Initialize(domain.CertificateEICR, nil)
	require.NoError(t, err)

	_, err = c.SaveItem("NOPE")
	assert.ErrorIs(t, err, ErrInvalidItemCode)

	require.NoError(t, c.SetResult("EICR-05", domain.ResultFail))
	_, err = c.SaveItem("EICR-05")
	assert.ErrorIs(t, err, ErrIneligibleSave)

	require.NoError(t, c.SetNotes("EICR-05", "earthing clamp corroded"))
	it, err := c.SaveItem("EICR-05")
	require.NoError(t, err)
	assert.Equal(t, "earthing clamp corroded", it.Notes)
}

func TestApplyBatch_FailSoft(t *testing.T) {
	c, err := Initialize(domain.CertificateMinorWorks, nil)
	require.NoError(t, err)

	report := c.ApplyBatch([]ItemUpdate{
		{ItemCode: "MW-01", Result: res(domain.ResultPass)},
		{ItemCode: "XYZ-99", Result: res(domain.ResultPass)},
		{ItemCode: "MW-02", Result: res(domain.ResultFail)},
		{ItemCode: "MW-03", Result: res(domain.ResultLimitation), Notes: str("boxed in behind kitchen units")},
		{ItemCode: "MW-04", Result: res("broken")},
		{ItemCode: "MW-05", Notes: str("checked")},
	})
	assert.False(t, report.OK())

	require.Len(t, report.Saved, 2)
	assert.Equal(t, "MW-01", report.Saved[0].ItemCode)
	assert.Equal(t, "MW-03", report.Saved[1].ItemCode)

	require.Len(t, report.Failures, 4)
	assert.Equal(t, "XYZ-99", report.Failures[0].ItemCode)
	assert.Equal(t, ReasonInvalidItemCode, report.Failures[0].Reason)
	assert.Equal(t, "MW-02", report.Failures[1].ItemCode)
	assert.Equal(t, ReasonIneligibleSave, report.Failures[1].Reason)
	assert.ErrorIs(t, report.Failures[1].Err, ErrIneligibleSave)
	assert.Equal(t, ReasonInvalidResult, report.Failures[2].Reason)
	assert.Equal(t, "MW-05", report.Failures[3].ItemCode)
	assert.Equal(t, ReasonIneligibleSave, report.Failures[3].Reason)

	// rejected updates stay in the working checklist
	it, err := c.Item("MW-02")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFail, it.Result)
	it, _ = c.Item("MW-05")
	assert.Equal(t, "checked", it.Notes)
	assert.Equal(t, domain.ResultNone, it.Result)
}

func TestSaveAll(t *testing.T) {
	c, err := Initialize(domain.CertificatePAT, nil)
	require.NoError(t, err)
	require.NoError(t, c.SetResult("PAT-01", domain.ResultPass))
	require.NoError(t, c.SetResult("PAT-02", domain.ResultFail))

	report := c.SaveAll()
	require.Len(t, report.Saved, 1)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "PAT-02", report.Failures[0].ItemCode)
	assert.Len(t, report.Skipped, 6)
}

func TestCertificateEligible(t *testing.T) {
	c, err := Initialize(domain.CertificateMinorWorks, nil)
	require.NoError(t, err)
	ok, blocking := c.CertificateEligible()
	assert.False(t, ok)
	assert.Len(t, blocking, 10)

	for _, it := range c.Items {
		require.NoError(t, c.SetResult(it.ItemCode, domain.ResultPass))
	}
	require.NoError(t, c.SetResult("MW-07", domain.ResultLimitation))
	ok, blocking = c.CertificateEligible()
	assert.False(t, ok)
	assert.Equal(t, []string{"MW-07"}, blocking)
	assert.Equal(t, 100, c.Progress().Percent)

	require.NoError(t, c.SetNotes("MW-07", "route under floor not visible"))
	ok, blocking = c.CertificateEligible()
	assert.True(t, ok)
	assert.Empty(t, blocking)

	empty := &Checklist{CertificateType: domain.CertificatePAT}
	ok, _ = empty.CertificateEligible()
	assert.False(t, ok)
}
