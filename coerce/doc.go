// Package coerce implements the per-field transform chain applied to call
// inputs before they reach the database and to result columns before they are
// marshalled back to the caller.
//
// Every transform is a pure function of the value, the field's Options and the
// owning call's strip policy. The order is fixed:
//
//  1. strip forbidden characters (strip)
//  2. boolean conversion (bool)
//  3. null conversion (null)
//  4. BattlEye GUID conversion (beguid)
//  5. engine escape (mysql_escape), double quote escape and wrap
//     (string_escape_quotes, string), single quote escape and wrap
//     (string_escape_quotes2, string2)
//
// Temporal values travel as bracketed numeric arrays, e.g. [2016,5,21] or
// [2016,5,21,10,30,0]; ParseTemporal and Temporal.Literal convert between that
// form and a year/month/day/hour/minute/second structure.
package coerce
