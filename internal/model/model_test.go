package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]RequestStatus{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusCancelled},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, p := range allowed {
		assert.Truef(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	denied := [][2]RequestStatus{
		{StatusAssigned, StatusPending},
		{StatusInProgress, StatusPending},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusPending},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCompleted, StatusInProgress},
	}
	for _, p := range denied {
		assert.Falsef(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range []RequestStatus{StatusCompleted, StatusCancelled} {
		require.True(t, from.Terminal())
		for _, to := range []RequestStatus{StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled} {
			assert.False(t, CanTransition(from, to))
		}
	}
}

func TestCanAssign(t *testing.T) {
	assert.True(t, CanAssign(StatusPending))
	assert.True(t, CanAssign(StatusAssigned), "reassignment")
	for _, st := range []RequestStatus{StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.Falsef(t, CanAssign(st), "%s", st)
	}
}

func TestTaskFollows(t *testing.T) {
	assert.True(t, TaskFollows(StatusPending, StatusCancelled))
	assert.True(t, TaskFollows(StatusInProgress, StatusCompleted))
	assert.True(t, TaskFollows(StatusAssigned, StatusCompleted))
	assert.False(t, TaskFollows(StatusCompleted, StatusCancelled))
	assert.True(t, TaskFollows(StatusAssigned, StatusInProgress))
	assert.False(t, TaskFollows(StatusPending, StatusInProgress))
	assert.False(t, TaskFollows(StatusPending, StatusAssigned))
}

func TestParseStatusAndWasteType(t *testing.T) {
	st, err := ParseStatus("In-Progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
	_, err = ParseStatus("done")
	assert.Error(t, err)

	wt, err := ParseWasteType("E-Waste")
	require.NoError(t, err)
	assert.Equal(t, WasteEWaste, wt)
	_, err = ParseWasteType("nuclear")
	assert.Error(t, err)
}

func TestPercentUnmarshal(t *testing.T) {
	var m SystemMetrics
	err := json.Unmarshal([]byte(`{"totalRequests":150,"completedRequests":120,"activeCollectors":15,"recyclingRate":"75%","monthlyGrowth":"+12%"}`), &m)
	require.NoError(t, err)
	assert.Equal(t, 150, m.TotalRequests)
	assert.Equal(t, Percent(75), m.RecyclingRate)
	assert.Equal(t, Percent(12), m.MonthlyGrowth)
	assert.Equal(t, "75%", m.RecyclingRate.String())

	require.NoError(t, json.Unmarshal([]byte(`{"recyclingRate":62.5}`), &m))
	assert.Equal(t, Percent(62.5), m.RecyclingRate)

	assert.Error(t, json.Unmarshal([]byte(`{"recyclingRate":"lots"}`), &m))
}

func TestEstimateFee(t *testing.T) {
	assert.Equal(t, "1500", EstimateFee(WastePlastic, 15).String())
	assert.True(t, EstimateFee(WasteOrganic, 1).Equal(MinimumFee))
	// paper has no dedicated rate and is billed as mixed
	assert.Equal(t, "800", EstimateFee(WastePaper, 10).String())

	in := PickupRequestInput{WasteType: WasteMetal, Volume: VolumeLarge}
	assert.Equal(t, 40.0, in.EstimatedKg())
	in.VolumeKg = 12
	assert.Equal(t, 12.0, in.EstimatedKg())
}

func TestPickupRequestInputValidate(t *testing.T) {
	in := PickupRequestInput{WasteType: "E-Waste", Volume: VolumeSmall, Location: &GeoPoint{Lat: -1.2921, Lng: 36.8219}}
	require.NoError(t, in.Validate())
	assert.Equal(t, WasteEWaste, in.WasteType)

	bad := []PickupRequestInput{
		{},
		{WasteType: "rubble"},
		{WasteType: WastePlastic, VolumeKg: 51},
		{WasteType: WastePlastic, Volume: "huge"},
		{WasteType: WastePlastic, Location: &GeoPoint{Lat: 91}},
		{WasteType: WastePlastic, Urgency: "whenever"},
	}
	for i := range bad {
		assert.Errorf(t, bad[i].Validate(), "case %d", i)
	}
}

func TestPayloadOmitsEmptyFields(t *testing.T) {
	in := PickupRequestInput{WasteType: WastePlastic, Location: &GeoPoint{Lat: -1.2921, Lng: 36.8219}}
	p := in.Payload()
	assert.Equal(t, "plastic", p["wasteType"])
	assert.Equal(t, map[string]any{"lat": -1.2921, "lng": 36.8219}, p["location"])
	_, ok := p["notes"]
	assert.False(t, ok)
}
