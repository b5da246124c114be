package expr

import (
	"fmt"
	"math"
)

type fn func(args []float64) (float64, error)

func powf(base, exp float64) float64 { return math.Pow(base, exp) }

var functions = map[string]fn{
	"abs": func(a []float64) (float64, error) {
		if err := arity("abs", a, 1); err != nil {
			return 0, err
		}
		return math.Abs(a[0]), nil
	},
	"min": func(a []float64) (float64, error) {
		if err := arity("min", a, 2); err != nil {
			return 0, err
		}
		return math.Min(a[0], a[1]), nil
	},
	"max": func(a []float64) (float64, error) {
		if err := arity("max", a, 2); err != nil {
			return 0, err
		}
		return math.Max(a[0], a[1]), nil
	},
	"round": func(a []float64) (float64, error) {
		if len(a) == 1 {
			return math.Round(a[0]), nil
		}
		if len(a) == 2 {
			mult := math.Pow(10, a[1])
			return math.Round(a[0]*mult) / mult, nil
		}
		return 0, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(a))
	},
	"sqrt": func(a []float64) (float64, error) {
		if err := arity("sqrt", a, 1); err != nil {
			return 0, err
		}
		if a[0] < 0 {
			return 0, fmt.Errorf("sqrt of negative number %v", a[0])
		}
		return math.Sqrt(a[0]), nil
	},
	"log": func(a []float64) (float64, error) {
		if err := arity("log", a, 1); err != nil {
			return 0, err
		}
		if a[0] <= 0 {
			return 0, fmt.Errorf("log of non-positive number %v", a[0])
		}
		return math.Log(a[0]), nil
	},
	"clamp": func(a []float64) (float64, error) {
		if err := arity("clamp", a, 3); err != nil {
			return 0, err
		}
		x, lo, hi := a[0], a[1], a[2]
		if x < lo {
			return lo, nil
		}
		if x > hi {
			return hi, nil
		}
		return x, nil
	},
}

func arity(name string, args []float64, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}
