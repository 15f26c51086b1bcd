// Package domain models wildfire-ignition and outage events and the weather
// station observations they are correlated with.
//
// # Data Source
//
// Station metadata and observations come from the Synoptic Data weather API
// (https://api.synopticdata.com/v2/). Two resources are used:
//
//	stations/metadata    lookup by station identifier (stid)
//	stations/timeseries  observations by stid, or by radius "lat,lon,miles"
//
// Every response carries a SUMMARY block. RESPONSE_CODE 1 is success; 2 means
// the stid is unknown, or that a radius query found no stations.
//
// # Synoptic Data Conventions
//
// Time format:
//
//	Request start/end use the compact UTC form YYYYMMDDHHMM, e.g. 201910092300.
//	Responses report ISO-8601 timestamps, e.g. "2019-10-09T23:00:00Z".
//	See [Instant.Compact] and [ParseInstant].
//
// Observation layout:
//
//	OBSERVATIONS holds parallel arrays indexed by the shared "date_time" array:
//	  {"date_time": [t0, t1, ...], "wind_gust_set_1": [g0, g1, ...], ...}
//	Variable names carry a set suffix: "_set_1" is measured, "_set_1d" derived.
//	Missing readings are null. Wind gust is [GustField].
//
// Station metadata:
//
//	Numeric fields such as LATITUDE and ELEVATION arrive as strings.
//	PERIOD_OF_RECORD is {"start": ..., "end": ...}. SENSOR_VARIABLES is an
//	open-ended object kept verbatim.
//
// # Windows
//
// A time window of width t hours covers [ref - t/2, ref + t/2), where ref is
// the event time shifted by the configured offset. A distance window of g
// miles covers stations whose haversine distance is <= g. See [ComputeMaxGust].
//
// # Spreadsheet Dates
//
// Exported spreadsheets may carry dates as 1900-system serial day numbers
// (e.g. 43747.958333 for 2019-10-09 23:00 local). See [InstantFromSpreadsheetSerial].
package domain
