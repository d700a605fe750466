package metrics

import (
	"math"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
)

// TorqueEffort accumulates the RMS joint torque over a run, a proxy for
// actuator load that weights sustained high commands over brief spikes.
type TorqueEffort struct {
	name    string
	sumSq   float64
	peak    float64
	samples int
}

func NewTorqueEffort() *TorqueEffort {
	return &TorqueEffort{name: "torque_rms"}
}

func (c *TorqueEffort) Name() string { return c.name }

func (c *TorqueEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, v := range u {
		c.sumSq += v * v
		if a := math.Abs(v); a > c.peak {
			c.peak = a
		}
		c.samples++
	}
}

func (c *TorqueEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return math.Sqrt(c.sumSq / float64(c.samples))
}

// Peak returns the largest absolute torque seen on any joint.
func (c *TorqueEffort) Peak() float64 { return c.peak }

func (c *TorqueEffort) Reset() {
	c.sumSq = 0
	c.peak = 0
	c.samples = 0
}
