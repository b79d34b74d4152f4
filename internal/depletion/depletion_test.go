package depletion

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

func ptr(v float64) *float64 { return &v }

var aquifer = AquiferParams{SepDistance: 100, Transmissivity: 1000, Storativity: 0.1}

func TestTheisLoad(t *testing.T) {
	tests := []struct {
		name    string
		params  AquiferParams
		methods []string
		wantErr bool
	}{
		{name: "fully penetrating", params: aquifer, methods: []string{MethodTheis}},
		{
			name:    "with leakance",
			params:  AquiferParams{SepDistance: 100, Transmissivity: 1000, Storativity: 0.1, StreamLeakance: 5},
			methods: []string{MethodHunt1999, MethodTheis},
		},
		{name: "zero distance", params: AquiferParams{Transmissivity: 1000, Storativity: 0.1}, wantErr: true},
		{name: "negative leakance", params: AquiferParams{SepDistance: 1, Transmissivity: 1, Storativity: 1, StreamLeakance: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods, err := NewTheis().LoadAquiferData(tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.methods, methods)
		})
	}
}

func TestTheisSDRatio(t *testing.T) {
	m := NewTheis()
	_, err := m.SDRatio(10, "")
	assert.Error(t, err, "model must be loaded first")

	_, err = m.LoadAquiferData(aquifer)
	require.NoError(t, err)

	r, err := m.SDRatio(10, "")
	require.NoError(t, err)
	assert.InDelta(t, math.Erfc(math.Sqrt(0.025)), r, 1e-12)

	prev := 0.0
	for _, n := range []int{1, 7, 30, 150, 365} {
		r, err := m.SDRatio(n, MethodTheis)
		require.NoError(t, err)
		assert.Greater(t, r, prev)
		assert.LessOrEqual(t, r, 1.0)
		prev = r
	}

	_, err = m.SDRatio(30, MethodHunt1999)
	assert.Error(t, err, "hunt1999 needs a streambed leakance")
	_, err = m.SDRatio(0, "")
	assert.Error(t, err)
}

func TestHuntBelowGlover(t *testing.T) {
	m := NewTheis()
	_, err := m.LoadAquiferData(AquiferParams{SepDistance: 500, Transmissivity: 800, Storativity: 0.05, StreamLeakance: 2})
	require.NoError(t, err)

	for _, n := range []int{1, 30, 365, 3650} {
		hunt, err := m.SDRatio(n, "")
		require.NoError(t, err)
		theis, err := m.SDRatio(n, MethodTheis)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, hunt, 0.0)
		assert.LessOrEqual(t, hunt, theis+1e-12, "finite streambed leakance reduces depletion")
	}
}

func TestTheisSDExtractionSuperposition(t *testing.T) {
	m := NewTheis()
	_, err := m.LoadAquiferData(aquifer)
	require.NoError(t, err)

	t.Run("constant pumping telescopes to the ratio curve", func(t *testing.T) {
		pumping := []float64{10, 10, 10, 10, 10}
		out, err := m.SDExtraction(pumping, "")
		require.NoError(t, err)
		for i, v := range out {
			assert.InDelta(t, 10*glover(aquifer, float64(i+1)), v, 1e-9)
		}
	})

	t.Run("depletion continues after pumping stops", func(t *testing.T) {
		out, err := m.SDExtraction([]float64{10, 0, 0}, "")
		require.NoError(t, err)
		assert.Greater(t, out[1], 0.0)
		assert.InDelta(t, 10*(glover(aquifer, 3)-glover(aquifer, 2)), out[2], 1e-9)
	})
}

// fakeModel halves pumping and records the method it was asked for
type fakeModel struct {
	methods []string
	loadErr error

	mu   *sync.Mutex
	used *[]string
}

func (f *fakeModel) LoadAquiferData(AquiferParams) ([]string, error) {
	return f.methods, f.loadErr
}

func (f *fakeModel) SDRatio(int, string) (float64, error) { return 0.25, nil }

func (f *fakeModel) SDExtraction(pumping []float64, method string) ([]float64, error) {
	f.mu.Lock()
	*f.used = append(*f.used, method)
	f.mu.Unlock()
	out := make([]float64, len(pumping))
	for i, q := range pumping {
		out[i] = q / 2
	}
	return out, nil
}

func fakeFactory(loadErr error) (Factory, *[]string) {
	var mu sync.Mutex
	used := []string{}
	return func() Model {
		return &fakeModel{methods: []string{"theis"}, loadErr: loadErr, mu: &mu, used: &used}
	}, &used
}

func jan(d int) time.Time { return time.Date(2019, 1, d, 0, 0, 0, 0, time.UTC) }

func dailyRows(permit, wap string, from, to int, sw, gw float64) []domain.EstimateRow {
	var out []domain.EstimateRow
	for d := from; d <= to; d++ {
		out = append(out, domain.EstimateRow{
			Key:           domain.Key{PermitID: permit, WapID: wap, Date: jan(d)},
			TotalUsageEst: sw + gw,
			SwUsageEst:    sw,
			GwUsageEst:    gw,
		})
	}
	return out
}

func fixture() ([]domain.Point, []domain.Permit, []domain.EstimateRow) {
	points := []domain.Point{
		{WapID: "G1", PermitID: "PG", SepDistance: ptr(100), PumpAqTrans: ptr(1000), PumpAqS: ptr(0.1), Method: "hunt1999"},
		{WapID: "G2", PermitID: "PX"},
		{WapID: "S1", PermitID: "PS"},
	}
	permits := []domain.Permit{
		{PermitID: "PG", HydroFeature: domain.Groundwater},
		{PermitID: "PX", HydroFeature: domain.Groundwater},
		{PermitID: "PS", HydroFeature: domain.SurfaceWater},
	}
	var daily []domain.EstimateRow
	daily = append(daily, dailyRows("PG", "G1", 1, 31, 0, 8)...)
	daily = append(daily, dailyRows("PX", "G2", 1, 31, 0, 8)...)
	daily = append(daily, dailyRows("PS", "S1", 1, 31, 3, 0)...)
	return points, permits, daily
}

func TestCalculateDaily(t *testing.T) {
	points, permits, daily := fixture()
	daily[3].GwUsageEst = math.NaN()
	daily[3].TotalUsageEst = math.NaN()

	factory, used := fakeFactory(nil)
	logger, handler := testutil.NewTestLogger(t)
	c := New(factory, 2, logger)

	rows, err := c.Calculate(context.Background(), points, permits, daily, domain.Daily)
	require.NoError(t, err)
	require.Len(t, rows, 62, "the take without aquifer parameters is skipped")

	for _, r := range rows {
		assert.NotEqual(t, "PX", r.PermitID)
		switch {
		case r.PermitID == "PS":
			assert.Equal(t, 3.0, r.SDRate, "surface water passes through")
		case r.Date.Equal(jan(4)):
			assert.True(t, math.IsNaN(r.SDRate))
		default:
			assert.Equal(t, 4.0, r.SDRate)
		}
	}
	assert.Equal(t, []string{""}, *used, "unsupported point method falls back to the model default")
	assert.True(t, handler.ContainsMessage("skipping take without aquifer parameters"))
}

func TestCalculateUsesWholePumping(t *testing.T) {
	points, permits, _ := fixture()
	daily := dailyRows("PG", "G1", 1, 31, 3.2, 4.8)
	factory, _ := fakeFactory(nil)

	rows, err := New(factory, 1, nil).Calculate(context.Background(), points[:1], permits[:1], daily, domain.Daily)
	require.NoError(t, err)
	require.Len(t, rows, 31)
	for _, r := range rows {
		assert.InDelta(t, 4.0, r.SDRate, 1e-9, "the sd share of the allocation is not taken off the pumping")
	}
}

func TestCalculateResamples(t *testing.T) {
	points, permits, daily := fixture()
	factory, _ := fakeFactory(nil)
	c := New(factory, 0, nil)

	rows, err := c.Calculate(context.Background(), points, permits, daily, domain.Monthly)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "PG", rows[0].PermitID)
	assert.Equal(t, time.Date(2019, 1, 31, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.InDelta(t, 31*4.0, rows[0].SDRate, 1e-9)
	assert.InDelta(t, 31*3.0, rows[1].SDRate, 1e-9)
}

func TestCalculateMethodSelection(t *testing.T) {
	points, permits, daily := fixture()
	points[0].Method = "theis"
	factory, used := fakeFactory(nil)

	_, err := New(factory, 1, nil).Calculate(context.Background(), points, permits, daily, domain.Daily)
	require.NoError(t, err)
	assert.Equal(t, []string{"theis"}, *used)
}

func TestCalculateModelFailure(t *testing.T) {
	points, permits, daily := fixture()
	cause := errors.New("aquifer table unavailable")
	factory, _ := fakeFactory(cause)

	_, err := New(factory, 1, nil).Calculate(context.Background(), points, permits, daily, domain.Daily)
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.ErrorIs(t, err, cause)
}

func TestCalculateWithBuiltinModel(t *testing.T) {
	points, permits, daily := fixture()

	rows, err := New(nil, 0, nil).Calculate(context.Background(), points[:1], permits[:1], daily[:31], domain.Daily)
	require.NoError(t, err)
	require.Len(t, rows, 31)
	for i, r := range rows {
		assert.InDelta(t, 8*glover(aquifer, float64(i+1)), r.SDRate, 1e-9)
	}
}

func TestSDRatios(t *testing.T) {
	points := []domain.Point{
		{WapID: "G1", PermitID: "P1", SepDistance: ptr(100), PumpAqTrans: ptr(1000), PumpAqS: ptr(0.1), NDays: 10},
		{WapID: "G2", PermitID: "P1", SepDistance: ptr(100), PumpAqTrans: ptr(1000), PumpAqS: ptr(0.1), NDays: 10, SDRatio: ptr(0.9)},
		{WapID: "G3", PermitID: "P1", NDays: 10},
	}

	out, err := New(nil, 0, nil).SDRatios(context.Background(), points)
	require.NoError(t, err)
	require.NotNil(t, out[0].SDRatio)
	assert.InDelta(t, math.Erfc(math.Sqrt(0.025)), *out[0].SDRatio, 1e-12)
	assert.Equal(t, 0.9, *out[1].SDRatio, "explicit ratio wins")
	assert.Nil(t, out[2].SDRatio)
	assert.Nil(t, points[0].SDRatio, "input is not mutated")
}
