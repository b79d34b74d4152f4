package usage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

func day(d int) time.Time {
	return time.Date(2019, 1, d, 0, 0, 0, 0, time.UTC)
}

func readings(wap string, start int, values ...float64) []domain.UsageReading {
	out := make([]domain.UsageReading, len(values))
	for i, v := range values {
		out[i] = domain.UsageReading{WapID: wap, Date: day(start + i), WaterUse: v}
	}
	return out
}

func values(rows []domain.UsageRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.TotalUsage
	}
	return out
}

func codes(rows []domain.UsageRow) []domain.QualityCode {
	out := make([]domain.QualityCode, len(rows))
	for i, r := range rows {
		out[i] = r.QualityCode
	}
	return out
}

func TestCleanNegativeClipOnly(t *testing.T) {
	rows, ev := Clean(readings("W1", 1, -5, 1000, 6), CleanOptions{})

	assert.Equal(t, []float64{0, 1000, 6}, values(rows))
	assert.Equal(t, []domain.QualityCode{1, 0, 0}, codes(rows))
	assert.Equal(t, 1, ev.Clipped)
	assert.Zero(t, ev.Spikes)
}

func TestCleanSuppressesSpikes(t *testing.T) {
	tests := []struct {
		name   string
		in     []domain.UsageReading
		want   []float64
		codes  []domain.QualityCode
		spikes int
	}{
		{
			name:   "spike replaced by neighbour mean",
			in:     readings("W1", 1, -5, 1000, 6),
			want:   []float64{0, 3, 6},
			codes:  []domain.QualityCode{1, 2, 0},
			spikes: 1,
		},
		{
			name:   "within threshold kept",
			in:     readings("W1", 1, 10, 11.9, 10),
			want:   []float64{10, 11.9, 10},
			codes:  []domain.QualityCode{0, 0, 0},
			spikes: 0,
		},
		{
			name: "gap in days is not a spike",
			in: append(readings("W1", 1, 1, 500),
				domain.UsageReading{WapID: "W1", Date: day(5), WaterUse: 1}),
			want:   []float64{1, 500, 1},
			codes:  []domain.QualityCode{0, 0, 0},
			spikes: 0,
		},
		{
			name:   "neighbours from another point are ignored",
			in:     append(readings("W1", 1, 1, 500), readings("W2", 3, 1)...),
			want:   []float64{1, 500, 1},
			codes:  []domain.QualityCode{0, 0, 0},
			spikes: 0,
		},
		{
			name:   "adjacent spikes use original neighbours",
			in:     readings("W1", 1, 0, 100, 100, 0),
			want:   []float64{0, 50, 50, 0},
			codes:  []domain.QualityCode{0, 2, 2, 0},
			spikes: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, ev := Clean(tt.in, DefaultCleanOptions())
			assert.Equal(t, tt.want, values(rows))
			assert.Equal(t, tt.codes, codes(rows))
			assert.Equal(t, tt.spikes, ev.Spikes)
		})
	}
}

func TestCleanSumsDuplicatesAndDropsMissing(t *testing.T) {
	in := []domain.UsageReading{
		{WapID: "W1", Date: day(2).Add(6 * time.Hour), WaterUse: 4},
		{WapID: "W1", Date: day(2), WaterUse: 6},
		{WapID: "W1", Date: day(1), WaterUse: math.NaN()},
	}
	rows, ev := Clean(in, CleanOptions{})
	require.Len(t, rows, 1)
	assert.Equal(t, day(2), rows[0].Date)
	assert.Equal(t, 10.0, rows[0].TotalUsage)
	assert.Equal(t, 1, ev.Dropped)
}

func TestResample(t *testing.T) {
	daily, _ := Clean(append(
		readings("W1", 30, -1, 2),
		domain.UsageReading{WapID: "W1", Date: time.Date(2019, 2, 1, 0, 0, 0, 0, time.UTC), WaterUse: 5},
	), CleanOptions{})

	monthly := Resample(daily, domain.Monthly)
	require.Len(t, monthly, 2)
	assert.Equal(t, time.Date(2019, 1, 31, 0, 0, 0, 0, time.UTC), monthly[0].Date)
	assert.Equal(t, 2.0, monthly[0].TotalUsage)
	assert.Equal(t, domain.QualityAdjusted, monthly[0].QualityCode, "worst daily code carried")
	assert.Equal(t, 5.0, monthly[1].TotalUsage)
	assert.Equal(t, domain.QualityClean, monthly[1].QualityCode)

	weekly := Resample(daily, domain.Weekly)
	require.Len(t, weekly, 1, "2019-01-30..02-01 fall in the week ending 2019-02-03")
	assert.Equal(t, time.Date(2019, 2, 3, 0, 0, 0, 0, time.UTC), weekly[0].Date)
	assert.Equal(t, 7.0, weekly[0].TotalUsage)

	same := Resample(daily, domain.Daily)
	assert.Equal(t, daily, same)
}

func TestApportionSharedPoint(t *testing.T) {
	d := day(31)
	alloc := []domain.AllocationRow{
		{Key: domain.Key{PermitID: "P1", WapID: "W1", Date: d}, TotalAllo: 300, SwAllo: 100, GwAllo: 200},
		{Key: domain.Key{PermitID: "P2", WapID: "W1", Date: d}, TotalAllo: 100, SwAllo: 0, GwAllo: 100},
		{Key: domain.Key{PermitID: "P3", WapID: "W2", Date: d}, TotalAllo: 100, SwAllo: 0, GwAllo: 100},
	}
	usage := []domain.UsageRow{{WapID: "W1", Date: d, TotalUsage: 400}}

	rows, outliers := Apportion(alloc, usage, DefaultUsageAlloRatio)
	require.Len(t, rows, 2, "points without usage produce no rows")
	assert.Zero(t, outliers)

	p1, p2 := rows[0], rows[1]
	assert.Equal(t, "P1", p1.PermitID)
	assert.InDelta(t, 300.0, p1.TotalUsage, 1e-9)
	assert.InDelta(t, 100.0, p1.SwUsage, 1e-9)
	assert.InDelta(t, 200.0, p1.GwUsage, 1e-9)
	assert.InDelta(t, 100.0, p2.TotalUsage, 1e-9)

	assert.InDelta(t, 400.0, p1.TotalUsage+p2.TotalUsage, 1e-9, "re-apportionment conserves point usage")
}

func TestApportionRejectsOutliers(t *testing.T) {
	d := day(31)
	alloc := []domain.AllocationRow{
		{Key: domain.Key{PermitID: "P1", WapID: "W1", Date: d}, TotalAllo: 10, GwAllo: 10},
		{Key: domain.Key{PermitID: "P2", WapID: "W1", Date: d}, TotalAllo: 90, GwAllo: 90},
		{Key: domain.Key{PermitID: "P3", WapID: "W2", Date: d}, TotalAllo: 100, GwAllo: 100},
	}
	usage := []domain.UsageRow{
		{WapID: "W1", Date: d, TotalUsage: 250},
		{WapID: "W2", Date: d, TotalUsage: 150},
	}

	rows, outliers := Apportion(alloc, usage, 2)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, outliers)

	for _, r := range rows[:2] {
		assert.True(t, math.IsNaN(r.TotalUsage), "%s: 2.5x allocation is rejected", r.PermitID)
		assert.True(t, math.IsNaN(r.GwUsage))
		assert.False(t, r.Reported())
		assert.Equal(t, domain.QualityAdjusted, r.QualityCode)
	}
	assert.InDelta(t, 150.0, rows[2].TotalUsage, 1e-9)
	assert.Equal(t, domain.QualityClean, rows[2].QualityCode)

	sum := 0.0
	for _, r := range rows[:2] {
		if r.Reported() {
			sum += r.TotalUsage
		}
	}
	assert.LessOrEqual(t, sum, 250.0)

	t.Run("ratio is overridable", func(t *testing.T) {
		rows, outliers := Apportion(alloc, usage, 3)
		assert.Zero(t, outliers)
		assert.InDelta(t, 25.0, rows[0].TotalUsage, 1e-9)
		assert.InDelta(t, 225.0, rows[1].TotalUsage, 1e-9)
	})
}

func TestApportionClampsGroundwater(t *testing.T) {
	d := day(31)
	alloc := []domain.AllocationRow{
		{Key: domain.Key{PermitID: "P1", WapID: "W1", Date: d}, TotalAllo: 100, SwAllo: 100 + 1e-9},
	}
	rows, _ := Apportion(alloc, []domain.UsageRow{{WapID: "W1", Date: d, TotalUsage: 50}}, 2)
	require.Len(t, rows, 1)
	assert.GreaterOrEqual(t, rows[0].GwUsage, 0.0)
}
