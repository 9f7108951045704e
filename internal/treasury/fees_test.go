package treasury

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovemjeune/gnosisland-treasury/internal/model"
)

func TestComputeSplit(t *testing.T) {
	tests := []struct {
		name        string
		gross       int64
		scenario    model.Scenario
		net         int64
		revenue     int64
		staker      int64
		referrer    int64
		beneficiary int64
	}{
		{
			name:        "plain purchase at 100",
			gross:       100,
			scenario:    model.ScenarioPlain,
			net:         100,
			revenue:     10,
			staker:      10,
			beneficiary: 80,
		},
		{
			name:        "referred purchase at 100",
			gross:       100,
			scenario:    model.ScenarioReferred,
			net:         90,
			revenue:     9,
			referrer:    9,
			beneficiary: 72,
		},
		{
			name:        "discounted purchase at 100",
			gross:       100,
			scenario:    model.ScenarioDiscounted,
			net:         50,
			revenue:     2,
			staker:      3,
			beneficiary: 45,
		},
		{
			name:        "plain purchase with odd fee rounds revenue down",
			gross:       15,
			scenario:    model.ScenarioPlain,
			net:         15,
			revenue:     1,
			staker:      2,
			beneficiary: 12,
		},
		{
			name:        "referred purchase at 1 rounds everything to beneficiary",
			gross:       1,
			scenario:    model.ScenarioReferred,
			net:         0,
			revenue:     0,
			referrer:    0,
			beneficiary: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := ComputeSplit(big.NewInt(tt.gross), tt.scenario)
			require.NoError(t, err)

			assert.Equal(t, tt.net, split.Net.Int64(), "net")
			assert.Equal(t, tt.revenue, split.Revenue.Int64(), "revenue")
			assert.Equal(t, tt.staker, split.Staker.Int64(), "staker")
			assert.Equal(t, tt.referrer, split.Referrer.Int64(), "referrer")
			assert.Equal(t, tt.beneficiary, split.Beneficiary.Int64(), "beneficiary")
		})
	}
}

func TestComputeSplitLegsSumToNet(t *testing.T) {
	scenarios := []model.Scenario{model.ScenarioPlain, model.ScenarioReferred, model.ScenarioDiscounted}
	for gross := int64(1); gross <= 1000; gross += 7 {
		for _, scenario := range scenarios {
			split, err := ComputeSplit(big.NewInt(gross), scenario)
			require.NoError(t, err)

			sum := new(big.Int).Add(split.Revenue, split.Staker)
			sum.Add(sum, split.Referrer)
			sum.Add(sum, split.Beneficiary)
			require.Zero(t, sum.Cmp(split.Net),
				"legs must sum to net for gross=%d scenario=%s", gross, scenario)
		}
	}
}

func TestComputeSplitRejectsBadInput(t *testing.T) {
	_, err := ComputeSplit(nil, model.ScenarioPlain)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = ComputeSplit(big.NewInt(0), model.ScenarioPlain)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = ComputeSplit(big.NewInt(-5), model.ScenarioPlain)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = ComputeSplit(big.NewInt(100), model.Scenario(42))
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}
