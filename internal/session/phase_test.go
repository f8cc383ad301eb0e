package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/memtest/pkg/models"
)

func TestTimeline(t *testing.T) {
	assert.Equal(t, []Phase{
		PhaseWelcome, PhaseIdentification, PhaseInstructions,
		PhaseStartAudio, PhaseMemorization, PhaseStopAudio,
		PhaseRecall, PhaseThankYou, PhaseExport,
	}, Timeline(models.WithMusic))

	assert.Equal(t, []Phase{
		PhaseWelcome, PhaseIdentification, PhaseInstructions,
		PhaseMemorization, PhaseRecall, PhaseThankYou, PhaseExport,
	}, Timeline(models.WithoutMusic))
}

func TestPhaseKinds(t *testing.T) {
	for _, p := range Timeline(models.WithMusic) {
		assert.Equal(t, p == PhaseMemorization || p == PhaseRecall, p.HasDeadline(), p)
		assert.Equal(t, p == PhaseStartAudio || p == PhaseStopAudio, p.PassThrough(), p)
	}
}
