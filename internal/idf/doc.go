// Package idf derives Intensity-Duration-Frequency rainfall curves from a
// station's daily precipitation record.
//
// # Pipeline
//
// [Run] is the single entry point. It is a pure function of its arguments:
//
//	records → annual maxima → GEV fit → goodness of fit → return-period depths
//	        → disaggregation coefficients → intensity matrix → IDF curve fit
//
// Each step validates its own preconditions and fails with an [*Error] that
// names the stage, so a caller always gets either a [Result] or one
// diagnostic. Several runs may execute concurrently; nothing is shared.
//
// # Input conventions
//
// Records follow the Hidroweb (ANA) export: a "Data" column in dd/mm/yyyy and
// a "Maxima" column holding the maximum daily depth in mm, written with a
// decimal comma. Column names are matched case- and whitespace-insensitively;
// "EstacaoCodigo" is optional.
//
// # Distributions
//
// The GEV uses F(x) = exp(-(1+ξ(x-μ)/σ)^(-1/ξ)). Shapes with |ξ| below
// Options.GumbelTolerance are evaluated with the Gumbel closed form,
// μ - σ·ln(-ln(1-1/T)).
//
// # Disaggregation
//
// Daily depths are multiplied by the municipality's coefficient for each of
// the 11 standard durations (1440 down to 10 minutes, 1440 being 1.0) and
// divided by the duration in hours to give intensity in mm/h.
//
// # IDF equation
//
//	I(t,T) = a·T^b / (t+c)^d
//
// with a ∈ [0, 1e4], b ∈ [-5, 5], c ∈ [0, 500], d ∈ [0, 5], fitted from the
// initial guess (1, 0.2, 10, 0.7).
package idf
