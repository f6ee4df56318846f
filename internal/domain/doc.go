// Package domain models event notices from the Swedish Police public API.
//
// # Data Source
//
// Events originate from https://polisen.se/api/events, a JSON array of the
// roughly 500 most recent notices written by police communications staff.
// Each record carries a numeric id, a human-written title, a free-text
// summary, a category label ("type"), a publication timestamp ("datetime"),
// and a location object with a name and optional GPS coordinates.
//
// # Feed Conventions
//
// Title format (the common case):
//
//	"<day> <month-name> <HH>.<MM>, <category>, <location>"
//	e.g. "16 januari 20.29, Stöld/inbrott, Nacka"
//	Month names are Swedish and lowercase. The clock separator is usually
//	a period but colons appear occasionally. The embedded date/time is when
//	the event occurred, which can precede publication by hours or days.
//
// Publication timestamp format:
//
//	"2006-01-02 15:04:05 -07:00" with a space between date and time.
//	Always Swedish local time (CET/CEST offset included).
//
// Digest categories:
//
//	Categories starting with "Sammanfattning" are nightly/evening/morning
//	roundups covering a period rather than a single incident. The covered
//	period is described in the summary ("under natten", "kl. 21-07", ...).
//
// Clock references in summaries:
//
//	Many summaries mention the incident clock time as "Kl. 20.29" or
//	"Klockan 20:29". When the referenced hour is well past the publication
//	hour the incident happened the previous day.
//
// Editorial updates:
//
//	Records are mutable upstream. Police staff correct titles, extend
//	summaries, and fix GPS coordinates after first publication, reusing the
//	same id. [Fingerprint] detects meaningful text changes so that GPS-only
//	corrections do not count as updates.
//
// # Occurrence Time
//
// [DeriveEventTime] recovers the best-guess occurrence time from the text,
// distinct from the publication time. It is a total function: any parse
// ambiguity falls back to the publication time, so one odd record never
// aborts a batch.
package domain
