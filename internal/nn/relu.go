package nn

// Mask records which neurons were active in one ReLU forward pass:
// 1 lets the gradient through, 0 mutes it.
type Mask []uint8

// ReLU applies max(0, z) to z in place and returns the activation mask.
func ReLU(z []float32) Mask {
	m := make(Mask, len(z))
	for i, v := range z {
		if v > 0 {
			m[i] = 1
		} else {
			z[i] = 0
		}
	}
	return m
}

// Backward zeroes da wherever the neuron was inactive.
func (m Mask) Backward(da []float32) {
	for i := range da {
		if m[i] == 0 {
			da[i] = 0
		}
	}
}
