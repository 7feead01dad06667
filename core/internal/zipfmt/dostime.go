package zipfmt

import "time"

// Date and time words used for timestamps before 1980, which MS-DOS cannot
// represent: 1980-01-01 00:00:00.
const (
	MinDOSDate uint16 = 0x21
	MinDOSTime uint16 = 0
)

// DOSDateTime encodes t as MS-DOS date and time words using t's own
// wall-clock fields. Seconds are stored at two-second resolution.
func DOSDateTime(t time.Time) (date, tm uint16) {
	year, month, day := t.Date()
	if year < 1980 {
		return MinDOSDate, MinDOSTime
	}
	hour, minute, sec := t.Clock()
	//nolint:gosec // fields are bounded by the calendar; years past 2107 wrap like every DOS encoder
	date = uint16((year-1980)<<9 | int(month)<<5 | day)
	tm = uint16(hour<<11 | minute<<5 | sec>>1) //nolint:gosec // bounded by the clock
	return date, tm
}

// FromDOSDateTime decodes MS-DOS date and time words as a UTC wall-clock
// time. Out-of-range fields are normalized by time.Date, so a zero date
// word decodes to a time before 1980.
func FromDOSDateTime(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)*2,
		0,
		time.UTC,
	)
}
