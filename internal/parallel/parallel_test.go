package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	configs := map[string]Config{
		"sequential": {Enabled: false},
		"parallel":   {Enabled: true, NumWorkers: 4, MinChunkSize: 1},
		"chunked":    {Enabled: true, NumWorkers: 3, MinChunkSize: 5},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 37
			var hits [n]atomic.Int32
			For(n, cfg, func(i int) {
				hits[i].Add(1)
			})
			for i := range hits {
				assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
			}
		})
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, DefaultConfig(), func(int) { called = true })
	assert.False(t, called)
}
