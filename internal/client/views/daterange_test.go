package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDateRange_Window(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("EET", 2*3600))

	tests := []struct {
		dr        DateRange
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{dr: DateRange{Range: Range24h}, wantStart: "2026-03-09", wantEnd: "2026-03-10"},
		{dr: DateRange{Range: Range7d}, wantStart: "2026-03-03", wantEnd: "2026-03-10"},
		{dr: DateRange{Range: Range30d}, wantStart: "2026-02-08", wantEnd: "2026-03-10"},
		{dr: DateRange{Range: RangeCustom, Start: "2026-01-01", End: "2026-01-31"}, wantStart: "2026-01-01", wantEnd: "2026-01-31"},
		{dr: DateRange{Range: RangeCustom, Start: "2026-01-01"}, wantErr: true},
		{dr: DateRange{Range: "1y"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.dr.String(), func(t *testing.T) {
			start, end, err := tc.dr.Window(now)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStart, start)
			require.Equal(t, tc.wantEnd, end)
		})
	}
}

func TestParseDateRange(t *testing.T) {
	dr, err := ParseDateRange("7d")
	require.NoError(t, err)
	require.Equal(t, DateRange{Range: Range7d}, dr)
	require.False(t, dr.Live())

	dr, err = ParseDateRange("custom", "2026-01-01", "2026-02-01")
	require.NoError(t, err)
	require.True(t, dr.Complete())

	dr, err = ParseDateRange("custom")
	require.NoError(t, err)
	require.False(t, dr.Complete())

	_, err = ParseDateRange("custom", "01/02/2026")
	require.Error(t, err)

	_, err = ParseDateRange("forever")
	require.Error(t, err)

	dr, _ = ParseDateRange("24h")
	require.True(t, dr.Live())
}
