package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseRaw() RawEvent {
	return RawEvent{
		ID:       461424,
		Datetime: "2024-01-17 01:00:00 +01:00",
		Name:     "16 januari 20.29, Stöld/inbrott, Nacka",
		Summary:  "En källarförråd har brutits upp.",
		URL:      "/aktuellt/handelser/2024/januari/17/16-januari-2029-stoldinbrott-nacka/",
		Type:     "Stöld/inbrott",
		Location: RawLocation{Name: "Nacka", GPS: "59.310558,18.163813"},
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(baseRaw())
	b := Fingerprint(baseRaw())

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprint_IgnoresCoordinates(t *testing.T) {
	original := baseRaw()
	corrected := baseRaw()
	corrected.Location.GPS = "59.305000,18.160000"

	assert.Equal(t, Fingerprint(original), Fingerprint(corrected))
}

func TestFingerprint_IgnoresURL(t *testing.T) {
	original := baseRaw()
	moved := baseRaw()
	moved.URL = "/aktuellt/handelser/other-path/"

	assert.Equal(t, Fingerprint(original), Fingerprint(moved))
}

func TestFingerprint_SensitiveToTextFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawEvent)
	}{
		{"one character summary change", func(r *RawEvent) { r.Summary += "." }},
		{"title change", func(r *RawEvent) { r.Name = "16 januari 20.30, Stöld/inbrott, Nacka" }},
		{"category change", func(r *RawEvent) { r.Type = "Stöld" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := baseRaw()
			changed := baseRaw()
			tt.mutate(&changed)

			assert.NotEqual(t, Fingerprint(original), Fingerprint(changed))
		})
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// Moving text across the field boundary must change the hash.
	a := RawEvent{Name: "ab", Summary: "c", Type: "t"}
	b := RawEvent{Name: "a", Summary: "bc", Type: "t"}

	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, baseRaw().Validate())

	tests := []struct {
		name   string
		mutate func(*RawEvent)
	}{
		{"missing id", func(r *RawEvent) { r.ID = 0 }},
		{"missing datetime", func(r *RawEvent) { r.Datetime = "" }},
		{"missing name", func(r *RawEvent) { r.Name = "" }},
		{"missing type", func(r *RawEvent) { r.Type = "" }},
		{"missing location name", func(r *RawEvent) { r.Location.Name = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := baseRaw()
			tt.mutate(&raw)
			assert.Error(t, raw.Validate())
		})
	}
}
