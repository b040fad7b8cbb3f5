// SPDX-License-Identifier: MIT
package classifier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelIndex is returned when a model index or name is not in the registry.
var ErrModelIndex = errors.New("unknown model")

// Class indexes the two sides of the discriminant.
type Class int

const (
	ClassAir Class = iota
	ClassWater
)

func (c Class) String() string {
	if c == ClassWater {
		return "water"
	}
	return "air"
}

// Model is one trained two-class linear discriminant. Weights carry one
// coefficient per feature plus a last one for the differential amplitude
// ratio.
type Model struct {
	Name   string
	Device string // handset model code the coefficients were trained on

	// BiasScale multiplies the air bias only. Below one gives fewer false
	// negatives, above one fewer false positives.
	BiasScale float64
	Bias      [2]float64
	Weights   [2][NumFeatures + 1]float64
}

// Trained on desktop recordings from each handset.
var models = []Model{
	{
		Name:      "xperia-z",
		Device:    "C6606",
		BiasScale: 1.0,
		Bias:      [2]float64{35.5462, -35.9042},
		Weights: [2][NumFeatures + 1]float64{
			{-7.5540, -0.7146, 2.5971, -18.4074, -8.8711, 0.5688, 0.2565, 0.0755, -0.1047},
			{7.8489, 1.0318, -2.3280, 18.8388, 9.3777, 0.1654, 0.4106, 0.2758, 0.2114},
		},
	},
	{
		Name:      "xperia-z1",
		Device:    "C6902",
		BiasScale: 1.0,
		Bias:      [2]float64{20.5982, -20.1277},
		Weights: [2][NumFeatures + 1]float64{
			{-26.0055, 11.1361, 3.5664, -3.3576, -3.5706, -0.6180, 0.5575, 0.1595, 0.4632},
			{26.1086, -10.7750, -3.4174, 3.5933, 3.6595, 0.5035, 0.5272, 0.1125, -0.0820},
		},
	},
	{
		Name:      "xperia-z1s",
		Device:    "C6916",
		BiasScale: 1.0,
		Bias:      [2]float64{3.6766, -3.4051},
		Weights: [2][NumFeatures + 1]float64{
			{0.6594, 2.0125, 1.8729, -5.2284, -2.7234, 0.9259, -0.0331, 0.0046, -0.7622},
			{-0.7273, -1.6547, -1.9048, 5.3467, 3.1399, -1.1836, 0.3017, 0.0063, 0.5362},
		},
	},
}

// Models returns a copy of the model registry in index order.
func Models() []Model {
	return append([]Model(nil), models...)
}

// ModelByIndex returns the model at index i.
func ModelByIndex(i int) (Model, error) {
	if i < 0 || i >= len(models) {
		return Model{}, fmt.Errorf("%w: index %d (have %d)", ErrModelIndex, i, len(models))
	}
	return models[i], nil
}

// ModelByName looks a model up by name, case-insensitively, returning its
// index as well.
func ModelByName(name string) (Model, int, error) {
	for i, m := range models {
		if strings.EqualFold(m.Name, name) {
			return m, i, nil
		}
	}
	return Model{}, -1, fmt.Errorf("%w: %q", ErrModelIndex, name)
}

// ModelForDevice picks the model trained on the given handset code. Unknown
// devices fall back to model 0.
func ModelForDevice(code string) (Model, int) {
	for i, m := range models {
		if m.Device == code {
			return m, i
		}
	}
	return models[0], 0
}
