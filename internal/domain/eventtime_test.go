package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cet  = time.FixedZone("CET", 3600)
	cest = time.FixedZone("CEST", 2*3600)
)

func TestDeriveEventTime_TitleClock(t *testing.T) {
	t.Run("same day title", func(t *testing.T) {
		published := time.Date(2024, 1, 16, 20, 45, 12, 0, cet)
		raw := RawEvent{Name: "16 januari 20.29, Stöld/inbrott, Nacka", Type: "Stöld/inbrott"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 1, 16, 20, 29, 0, 0, cet), got)
	})

	t.Run("published past midnight rolls date back one day", func(t *testing.T) {
		published := time.Date(2024, 1, 17, 1, 0, 0, 0, cet)
		raw := RawEvent{Name: "16 januari 20.29, Stöld/inbrott, Nacka", Type: "Stöld/inbrott"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 1, 16, 20, 29, 0, 0, cet), got)
	})

	t.Run("day after publication day means previous month", func(t *testing.T) {
		published := time.Date(2024, 2, 1, 0, 30, 0, 0, cet)
		raw := RawEvent{Name: "31 januari 23.55, Misshandel, Umeå", Type: "Misshandel"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 1, 31, 23, 55, 0, 0, cet), got)
	})

	t.Run("month rollback crosses year boundary", func(t *testing.T) {
		published := time.Date(2024, 1, 1, 0, 15, 0, 0, cet)
		raw := RawEvent{Name: "31 december 23.40, Brand, Malmö", Type: "Brand"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2023, 12, 31, 23, 40, 0, 0, cet), got)
	})

	t.Run("colon clock separator", func(t *testing.T) {
		published := time.Date(2024, 6, 12, 15, 0, 0, 0, cest)
		raw := RawEvent{Name: "12 juni 14:05, Trafikolycka, Göteborg", Type: "Trafikolycka"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 6, 12, 14, 5, 0, 0, cest), got)
	})

	t.Run("unknown month name falls through to fallback", func(t *testing.T) {
		published := time.Date(2024, 1, 16, 20, 45, 0, 0, cet)
		raw := RawEvent{Name: "16 janvier 20.29, Stöld, Nacka", Type: "Stöld"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, published, got)
	})

	t.Run("out of range clock falls through to fallback", func(t *testing.T) {
		published := time.Date(2024, 1, 16, 20, 45, 0, 0, cet)
		raw := RawEvent{Name: "16 januari 27.99, Stöld, Nacka", Type: "Stöld"}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, published, got)
	})
}

func TestDeriveEventTime_DigestPeriod(t *testing.T) {
	published := time.Date(2024, 3, 9, 7, 12, 0, 0, cet)

	tests := []struct {
		name     string
		evType   string
		summary  string
		expected time.Time
	}{
		{
			"explicit hour range wins",
			"Sammanfattning natt",
			"Händelser under natten, kl. 21-07.",
			time.Date(2024, 3, 9, 21, 0, 0, 0, cet),
		},
		{
			"night period",
			"Sammanfattning natt",
			"Ett urval av nattens händelser.",
			time.Date(2024, 3, 9, 0, 0, 0, 0, cet),
		},
		{
			"evening period",
			"Sammanfattning kväll och natt",
			"Händelser under kvällen.",
			time.Date(2024, 3, 9, 18, 0, 0, 0, cet),
		},
		{
			"morning period from summary text",
			"Sammanfattning förmiddag",
			"Händelser under morgonen och förmiddagen.",
			time.Date(2024, 3, 9, 6, 0, 0, 0, cet),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := RawEvent{Name: "09 mars, sammanfattning", Type: tt.evType, Summary: tt.summary}
			assert.Equal(t, tt.expected, DeriveEventTime(raw, published))
		})
	}

	t.Run("digest with no period falls through", func(t *testing.T) {
		raw := RawEvent{Name: "Övrigt", Type: "Sammanfattning dygn", Summary: "Diverse händelser."}
		assert.Equal(t, published, DeriveEventTime(raw, published))
	})
}

func TestDeriveEventTime_SummaryClock(t *testing.T) {
	t.Run("clock within publication day", func(t *testing.T) {
		published := time.Date(2024, 5, 2, 21, 40, 0, 0, cest)
		raw := RawEvent{
			Name:    "Rattfylleri, Luleå",
			Type:    "Rattfylleri",
			Summary: "Kl. 20.15 stoppades en personbil på Storgatan.",
		}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 5, 2, 20, 15, 0, 0, cest), got)
	})

	t.Run("clock far ahead of publication hour rolls back a day", func(t *testing.T) {
		published := time.Date(2024, 5, 3, 6, 5, 0, 0, cest)
		raw := RawEvent{
			Name:    "Skadegörelse, Kiruna",
			Type:    "Skadegörelse",
			Summary: "Klockan 23:30 krossades en ruta på en skola.",
		}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 5, 2, 23, 30, 0, 0, cest), got)
	})

	t.Run("day rollback across month boundary", func(t *testing.T) {
		published := time.Date(2024, 3, 1, 2, 0, 0, 0, cet)
		raw := RawEvent{
			Name:    "Brand, Örebro",
			Type:    "Brand",
			Summary: "Kl 23.45 larmades räddningstjänsten.",
		}

		got := DeriveEventTime(raw, published)

		assert.Equal(t, time.Date(2024, 2, 29, 23, 45, 0, 0, cet), got)
	})
}

func TestDeriveEventTime_Fallback(t *testing.T) {
	published := time.Date(2024, 7, 20, 13, 37, 0, 0, cest)
	raw := RawEvent{
		Name:    "Trafikkontroll, Västerås",
		Type:    "Trafikkontroll",
		Summary: "Polisen genomförde kontroller under dagen.",
	}

	got := DeriveEventTime(raw, published)

	assert.Equal(t, published, got)
}

func TestDeriveEventTime_TitleTakesPriorityOverSummaryClock(t *testing.T) {
	published := time.Date(2024, 1, 17, 1, 0, 0, 0, cet)
	raw := RawEvent{
		Name:    "16 januari 20.29, Stöld/inbrott, Nacka",
		Type:    "Stöld/inbrott",
		Summary: "Kl. 22.10 kom ytterligare ett samtal.",
	}

	got := DeriveEventTime(raw, published)

	assert.Equal(t, time.Date(2024, 1, 16, 20, 29, 0, 0, cet), got)
}

func TestParsePublishTime(t *testing.T) {
	got, err := ParsePublishTime("2024-01-17 01:00:00 +01:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 17, 1, 0, 0, 0, cet)))

	_, err = ParsePublishTime("2024-01-17T01:00:00+01:00")
	require.Error(t, err)
}
