// Package domain models the analysis requests consumed by the service and the
// IDF reports it publishes.
//
// # Data Source
//
// Station records come from Hidroweb, the Brazilian National Water Agency
// (ANA) portal, at https://www.snirh.gov.br/hidroweb/. An upstream producer
// (or the HTTP API) reads a station export, keeps it as text and sends it
// with the target municipality as an [AnalysisRequest].
//
// # Hidroweb Conventions
//
// Column names:
//
//	"EstacaoCodigo"  station code, optional
//	"Data"           date as dd/mm/yyyy
//	"Maxima"         maximum daily depth in mm
//
// Matching is case- and whitespace-insensitive. Other columns are ignored.
//
// Numbers use a decimal comma ("45,2"); a decimal point is also accepted.
// Rows whose date or depth does not parse are dropped and counted in the
// report, never defaulted to zero.
//
// Series type:
//
//	"daily" is the only type analysed. "hourly", "5min" and "1min" are valid
//	Hidroweb series but produce a failed report of kind "unsupported".
//
// Municipalities:
//
//	Names must match the coefficient table exactly (accents included).
//	"state" is the two-letter UF code and disambiguates homonyms; when it is
//	empty the first municipality with that name is used.
//
// # Reports
//
// Every request that parses as JSON yields exactly one [AnalysisReport], with
// status "succeeded" or "failed". A failed report carries the stage, kind and
// diagnostic message of the failure. Statistics that are undefined for the
// input (for example R² when all intensities are equal) are null.
//
// # ID Generation
//
// Report IDs are deterministic SHA-256 digests of the series type, state,
// municipality and record content (see [RequestKey]). Replaying a request
// produces the same ID, so downstream consumers can upsert idempotently.
package domain
