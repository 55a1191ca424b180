package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexfold/alchemy-api/internal/domain"
	"github.com/lexfold/alchemy-api/internal/fingerprint"
)

func TestDeriveDeterministic(t *testing.T) {
	disc := fingerprint.Discriminators{
		"source_uri": "s3://bucket/audio.wav",
		"language":   "en",
	}

	first := fingerprint.Derive(domain.ProcessorTranscription, disc)
	second := fingerprint.Derive(domain.ProcessorTranscription, disc)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded sha256
}

func TestDeriveFieldOrderIndependence(t *testing.T) {
	// Maps have no order, so construct two maps with insertions in
	// different orders plus key-case and whitespace variance.
	a := fingerprint.Discriminators{
		"Source_URI": " s3://bucket/doc.pdf",
		"template":   "invoice-v2",
	}
	b := fingerprint.Discriminators{
		"template":   "invoice-v2 ",
		"source_uri": "s3://bucket/doc.pdf",
	}

	assert.Equal(t,
		fingerprint.Derive(domain.ProcessorExtraction, a),
		fingerprint.Derive(domain.ProcessorExtraction, b))
}

func TestDeriveDiscriminatesInputs(t *testing.T) {
	base := fingerprint.Discriminators{"source_uri": "s3://b/x", "language": "en"}

	t.Run("different kind", func(t *testing.T) {
		assert.NotEqual(t,
			fingerprint.Derive(domain.ProcessorTranscription, base),
			fingerprint.Derive(domain.ProcessorTranslation, base))
	})

	t.Run("different value", func(t *testing.T) {
		other := fingerprint.Discriminators{"source_uri": "s3://b/x", "language": "fr"}
		assert.NotEqual(t,
			fingerprint.Derive(domain.ProcessorTranscription, base),
			fingerprint.Derive(domain.ProcessorTranscription, other))
	})

	t.Run("value case is significant", func(t *testing.T) {
		other := fingerprint.Discriminators{"source_uri": "s3://B/X", "language": "en"}
		assert.NotEqual(t,
			fingerprint.Derive(domain.ProcessorTranscription, base),
			fingerprint.Derive(domain.ProcessorTranscription, other))
	})

	t.Run("key value boundary is unambiguous", func(t *testing.T) {
		// {"ab": "c"} must not collide with {"a": "bc"}.
		assert.NotEqual(t,
			fingerprint.Derive(domain.ProcessorRendering, fingerprint.Discriminators{"ab": "c"}),
			fingerprint.Derive(domain.ProcessorRendering, fingerprint.Discriminators{"a": "bc"}))
	})
}

func TestDeriveEmptyDiscriminators(t *testing.T) {
	// Degenerate but stable: the kind alone determines the key.
	assert.Equal(t,
		fingerprint.Derive(domain.ProcessorRendering, nil),
		fingerprint.Derive(domain.ProcessorRendering, fingerprint.Discriminators{}))
}
