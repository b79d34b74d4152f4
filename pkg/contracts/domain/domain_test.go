package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{"D", Daily, false},
		{"w-sun", Weekly, false},
		{" M ", Monthly, false},
		{"A-DEC", Annual, false},
		{"fiscal", AnnualJune, false},
		{"Q", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, Monthly, AnnualJune.Internal())
	assert.Equal(t, Weekly, Weekly.Internal())
}

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		name string
		freq Frequency
		day  time.Time
		want Period
	}{
		{"week ends sunday", Weekly, d(2018, 9, 5), Period{d(2018, 9, 3), d(2018, 9, 9)}},
		{"sunday is its own week end", Weekly, d(2018, 9, 9), Period{d(2018, 9, 3), d(2018, 9, 9)}},
		{"leap february", Monthly, d(2020, 2, 10), Period{d(2020, 2, 1), d(2020, 2, 29)}},
		{"calendar year", Annual, d(2018, 7, 1), Period{d(2018, 1, 1), d(2018, 12, 31)}},
		{"june year before july", AnnualJune, d(2018, 6, 30), Period{d(2017, 7, 1), d(2018, 6, 30)}},
		{"june year from july", AnnualJune, d(2018, 7, 1), Period{d(2018, 7, 1), d(2019, 6, 30)}},
		{"daily", Daily, time.Date(2018, 7, 1, 13, 30, 0, 0, time.UTC), Period{d(2018, 7, 1), d(2018, 7, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.freq.PeriodOf(tt.day))
			assert.Equal(t, tt.want.End, tt.freq.Label(tt.day))
		})
	}
}

func TestPeriods(t *testing.T) {
	ps := Monthly.Periods(d(2018, 7, 15), d(2018, 9, 2))
	require.Len(t, ps, 3)
	assert.Equal(t, d(2018, 7, 31), ps[0].End)
	assert.Equal(t, d(2018, 9, 30), ps[2].End)

	assert.Nil(t, Monthly.Periods(d(2018, 9, 2), d(2018, 7, 15)))

	sep := ps[2]
	assert.Equal(t, 30, sep.Days())
	assert.Equal(t, 11, sep.Overlap(d(2018, 9, 20), d(2018, 10, 10)))
	assert.Zero(t, sep.Overlap(d(2018, 10, 1), d(2018, 10, 10)))
	assert.True(t, sep.Contains(time.Date(2018, 9, 30, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 29, DaysInMonth(d(2020, 2, 1)))
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2019-01-02", "2019-01-02T10:00:00Z", "2019-01-02 10:00:00"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, d(2019, 1, 2), got, in)
	}
	_, err := ParseDate("")
	assert.Error(t, err)
	_, err = ParseDate("02/01/2019")
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	w, err := NewWindow("2018-07-01", "")
	require.NoError(t, err)
	assert.False(t, w.Bounded())
	assert.Equal(t, "2018-07-01..-", w.String())

	w, err = NewWindow("2018-07-01", "2019-06-30")
	require.NoError(t, err)
	from, to := w.Clamp(d(2018, 1, 1), d(2018, 12, 31))
	assert.Equal(t, d(2018, 7, 1), from)
	assert.Equal(t, d(2018, 12, 31), to)

	_, err = NewWindow("2019-06-30", "2018-07-01")
	assert.Error(t, err)
}

func TestDatasetKind(t *testing.T) {
	k, err := ParseDatasetKind("sd_rates")
	require.NoError(t, err)
	assert.Equal(t, DatasetDepletionRate, k)
	assert.Equal(t, []string{"sd_rate"}, k.Columns())
	assert.Equal(t, "depletion_rate", k.String())

	_, err = ParseDatasetKind("rainfall")
	assert.Error(t, err)
	assert.False(t, DatasetKind(9).Valid())
	assert.Equal(t, "dataset(9)", DatasetKind(9).String())
}

func TestKeyLess(t *testing.T) {
	a := Key{PermitID: "P1", WapID: "W2", Date: d(2018, 9, 30)}
	assert.True(t, a.Less(Key{PermitID: "P2", WapID: "W1", Date: d(2018, 1, 31)}))
	assert.True(t, a.Less(Key{PermitID: "P1", WapID: "W3", Date: d(2018, 1, 31)}))
	assert.True(t, a.Less(Key{PermitID: "P1", WapID: "W2", Date: d(2018, 10, 31)}))
	assert.False(t, a.Less(a))
}

func TestHydroFeature(t *testing.T) {
	h, ok := ParseHydroFeature("Take Surface Water")
	require.True(t, ok)
	assert.Equal(t, SurfaceWater, h)
	assert.Equal(t, 1.0, h.DefaultSDRatio())
	assert.Equal(t, 0.0, Groundwater.DefaultSDRatio())

	_, ok = ParseHydroFeature("geothermal")
	assert.False(t, ok)
}

func TestPointFields(t *testing.T) {
	trans, s, sep := 1000.0, 0.05, 0.0
	p := Point{WapID: "W1", PermitID: "P1", Lon: 172.5, PumpAqTrans: &trans, PumpAqS: &s, SepDistance: &sep,
		Extra: map[string]string{"catchment": "Selwyn"}}
	assert.False(t, p.HasAquiferParams(), "zero separation distance")
	sep = 200
	assert.True(t, p.HasAquiferParams())

	v, ok := p.Field("lon")
	assert.True(t, ok)
	assert.Equal(t, "172.5", v)
	v, ok = p.Field("catchment")
	assert.True(t, ok)
	assert.Equal(t, "Selwyn", v)
	_, ok = p.Field("rainfall")
	assert.False(t, ok)
}

func TestResultTableValue(t *testing.T) {
	tbl := &ResultTable{
		GroupBy: []string{"permit_id"},
		Columns: []string{"total_allo", "total_usage"},
		Rows:    []ResultRow{{Group: []string{"P1"}, Date: d(2018, 9, 30), Values: []float64{10, math.NaN()}}},
	}
	assert.Equal(t, []string{"permit_id", "date", "total_allo", "total_usage"}, tbl.Header())

	v, ok := tbl.Value(0, "total_allo")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
	v, ok = tbl.Value(0, "total_usage")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(v))

	_, ok = tbl.Value(1, "total_allo")
	assert.False(t, ok)
	_, ok = tbl.Value(0, "sd_rate")
	assert.False(t, ok)
}
