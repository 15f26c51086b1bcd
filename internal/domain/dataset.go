package domain

// Dataset is a decoded weather API response: a summary block, the units of each
// reported variable, and one observation series per station.
type Dataset struct {
	Summary  Summary
	Units    map[string]string
	Stations []StationSeries
}

// Summary is the SUMMARY block of an API response.
type Summary struct {
	NumberOfObjects int
	ResponseCode    int
	ResponseMessage string
}

// StationSeries is one station's entry in a time-series response. Distance is
// only populated for radius queries.
type StationSeries struct {
	Station  Station
	Distance float64
	Series   Series
}

// Series holds parallel arrays: DateTime[i] is the timestamp of Variables[name][i].
// Values are whatever the decoder produced (json.Number, string, nil, or a
// nested value that the cache rejects).
type Series struct {
	DateTime  []string
	Variables map[string][]any
}

// Len returns the number of timestamps in the series.
func (s Series) Len() int { return len(s.DateTime) }

// IsEmpty reports whether the dataset carries no stations.
func (d *Dataset) IsEmpty() bool {
	return d == nil || len(d.Stations) == 0
}
