package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUnit(t *testing.T) {
	assert.Equal(t, UnitGrams, ParseUnit(""))
	assert.Equal(t, UnitGrams, ParseUnit("g"))
	assert.Equal(t, UnitKilograms, ParseUnit("kg"))
	assert.Equal(t, UnitUnknown, ParseUnit("oz"))
}

func TestConvert(t *testing.T) {
	assert.InDelta(t, 125.83, UnitGrams.Convert(125.83), 1e-9)
	assert.InDelta(t, 0.12583, UnitKilograms.Convert(125.83), 1e-9)
}

func TestDataPointsMean(t *testing.T) {
	assert.Zero(t, DataPoints{}.Mean())

	points := DataPoints{
		{Weight: 100},
		{Weight: 200},
		{Weight: 300},
	}
	assert.InDelta(t, 200., points.Mean(), 1e-9)
	assert.InDelta(t, 300., points[2].Value(), 1e-9)
}
