package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/triage-ai/toolbox/internal/registry"
)

const maxFactorial = 170

// primeTrialLimit bounds trial division. Larger inputs use a
// Baillie-PSW test, which is exact below 2^64.
const primeTrialLimit = 1 << 40

type percentageArgs struct {
	Value json.Number `json:"value"`
	Total json.Number `json:"total"`
}

type discountArgs struct {
	OriginalPrice   json.Number `json:"original_price"`
	DiscountPercent json.Number `json:"discount_percent"`
}

type interestArgs struct {
	Principal json.Number `json:"principal"`
	Rate      json.Number `json:"rate"`
	Time      json.Number `json:"time"`
	Frequency json.Number `json:"frequency"`
}

func (a *interestArgs) Defaults() { a.Frequency = "1" }

type numbersArgs struct {
	Numbers []json.Number `json:"numbers"`
}

type integerArgs struct {
	Number json.Number `json:"number"`
}

type pairArgs struct {
	A json.Number `json:"a"`
	B json.Number `json:"b"`
}

func numbersParam(desc string) registry.Param {
	return registry.Param{Name: "numbers", Type: "array", Items: "number", Description: desc, Required: true}
}

func pairParams() registry.Schema {
	return registry.Params(
		registry.Param{Name: "a", Type: "integer", Description: "First integer", Required: true},
		registry.Param{Name: "b", Type: "integer", Description: "Second integer", Required: true},
	)
}

// Math returns the arithmetic and statistics tool group.
func Math() []registry.Tool {
	return []registry.Tool{
		{
			Name:        "calculate_percentage",
			Description: "Calculate value as a percentage of total",
			Parameters: registry.Params(
				registry.Param{Name: "value", Type: "number", Description: "Part value", Required: true},
				registry.Param{Name: "total", Type: "number", Description: "Total value", Required: true},
			),
			Handler: registry.Typed(calculatePercentage),
		},
		{
			Name:        "calculate_discount",
			Description: "Calculate the price after a percentage discount",
			Parameters: registry.Params(
				registry.Param{Name: "original_price", Type: "number", Description: "Original price", Required: true},
				registry.Param{Name: "discount_percent", Type: "number", Description: "Discount percentage", Required: true},
			),
			Handler: registry.Typed(calculateDiscount),
		},
		{
			Name:        "calculate_compound_interest",
			Description: "Calculate compound interest",
			Parameters: registry.Params(
				registry.Param{Name: "principal", Type: "number", Description: "Initial principal", Required: true},
				registry.Param{Name: "rate", Type: "number", Description: "Annual interest rate (%)", Required: true},
				registry.Param{Name: "time", Type: "number", Description: "Time in years", Required: true},
				registry.Param{Name: "frequency", Type: "integer", Description: "Compounding periods per year (default: 1)"},
			),
			Handler: registry.Typed(calculateCompoundInterest),
		},
		{
			Name:        "calculate_average",
			Description: "Calculate the arithmetic mean of numbers",
			Parameters:  registry.Params(numbersParam("Numbers to average")),
			Handler: registry.Typed(func(_ context.Context, a numbersArgs) (registry.Result, error) {
				if len(a.Numbers) == 0 {
					return registry.Result{"error": "Numbers array cannot be empty"}, nil
				}
				avg, err := mean(a.Numbers)
				if err != nil {
					return nil, err
				}
				return registry.Result{"average": avg, "count": len(a.Numbers)}, nil
			}),
		},
		{
			Name:        "calculate_median",
			Description: "Calculate the median of numbers",
			Parameters:  registry.Params(numbersParam("Numbers to take the median of")),
			Handler: registry.Typed(func(_ context.Context, a numbersArgs) (registry.Result, error) {
				if len(a.Numbers) == 0 {
					return registry.Result{"error": "Numbers array cannot be empty"}, nil
				}
				med, err := median(a.Numbers)
				if err != nil {
					return nil, err
				}
				return registry.Result{"median": med, "count": len(a.Numbers)}, nil
			}),
		},
		{
			Name:        "calculate_standard_deviation",
			Description: "Calculate the sample standard deviation of numbers",
			Parameters:  registry.Params(numbersParam("Numbers (at least 2)")),
			Handler: registry.Typed(func(_ context.Context, a numbersArgs) (registry.Result, error) {
				if len(a.Numbers) < 2 {
					return registry.Result{"error": "Need at least 2 numbers"}, nil
				}
				sd, err := sampleStdev(a.Numbers)
				if err != nil {
					return nil, err
				}
				return registry.Result{"standard_deviation": Float(round2(sd)), "count": len(a.Numbers)}, nil
			}),
		},
		{
			Name:        "calculate_factorial",
			Description: "Calculate the factorial of a non-negative integer (max 170)",
			Parameters: registry.Params(
				registry.Param{Name: "number", Type: "integer", Description: "Integer to take the factorial of", Required: true},
			),
			Handler: registry.Typed(calculateFactorial),
		},
		{
			Name:        "calculate_gcd",
			Description: "Calculate the greatest common divisor of two integers",
			Parameters:  pairParams(),
			Handler: registry.Typed(func(_ context.Context, p pairArgs) (registry.Result, error) {
				a, b, err := parsePair(p)
				if err != nil {
					return nil, err
				}
				return registry.Result{"gcd": gcd(a, b), "a": a, "b": b}, nil
			}),
		},
		{
			Name:        "calculate_lcm",
			Description: "Calculate the least common multiple of two integers",
			Parameters:  pairParams(),
			Handler: registry.Typed(func(_ context.Context, p pairArgs) (registry.Result, error) {
				a, b, err := parsePair(p)
				if err != nil {
					return nil, err
				}
				return registry.Result{"lcm": lcm(a, b), "a": a, "b": b}, nil
			}),
		},
		{
			Name:        "is_prime",
			Description: "Check whether an integer is prime",
			Parameters: registry.Params(
				registry.Param{Name: "number", Type: "integer", Description: "Integer to check", Required: true},
			),
			Handler: registry.Typed(func(ctx context.Context, a integerArgs) (registry.Result, error) {
				n, err := parseInteger(a.Number)
				if err != nil {
					return nil, err
				}
				prime, err := isPrime(ctx, n)
				if err != nil {
					return nil, err
				}
				return registry.Result{"is_prime": prime, "number": n}, nil
			}),
		},
	}
}

func calculatePercentage(_ context.Context, a percentageArgs) (registry.Result, error) {
	value, err := numberValue(a.Value)
	if err != nil {
		return nil, err
	}
	total, err := numberValue(a.Total)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return registry.Result{"error": "Total cannot be zero"}, nil
	}
	return registry.Result{"percentage": Float(round2(value / total * 100))}, nil
}

func calculateDiscount(_ context.Context, a discountArgs) (registry.Result, error) {
	price, err := numberValue(a.OriginalPrice)
	if err != nil {
		return nil, err
	}
	percent, err := numberValue(a.DiscountPercent)
	if err != nil {
		return nil, err
	}

	amount := price * (percent / 100)
	return registry.Result{
		"original_price":   echoNumber(a.OriginalPrice),
		"discount_percent": echoNumber(a.DiscountPercent),
		"discount_amount":  Float(round2(amount)),
		"final_price":      Float(round2(price - amount)),
	}, nil
}

func calculateCompoundInterest(_ context.Context, a interestArgs) (registry.Result, error) {
	var vals [4]float64
	for i, n := range []json.Number{a.Principal, a.Rate, a.Time, a.Frequency} {
		v, err := numberValue(n)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	principal, rate, years, frequency := vals[0], vals[1], vals[2], vals[3]
	if frequency == 0 {
		return nil, errors.New("division by zero")
	}

	amount := principal * math.Pow(1+rate/(100*frequency), frequency*years)
	if math.IsInf(amount, 0) || math.IsNaN(amount) {
		return nil, errors.New("math range error")
	}

	return registry.Result{
		"principal":       echoNumber(a.Principal),
		"rate":            echoNumber(a.Rate),
		"time":            echoNumber(a.Time),
		"frequency":       echoNumber(a.Frequency),
		"final_amount":    Float(round2(amount)),
		"interest_earned": Float(round2(amount - principal)),
	}, nil
}

func calculateFactorial(_ context.Context, a integerArgs) (registry.Result, error) {
	n, err := parseInteger(a.Number)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return registry.Result{"error": "Factorial is not defined for negative numbers"}, nil
	}
	if n.Cmp(big.NewInt(maxFactorial)) > 0 {
		return registry.Result{"error": "Number too large (max: 170)"}, nil
	}
	return registry.Result{"factorial": new(big.Int).MulRange(1, n.Int64())}, nil
}

// exactValues converts numbers to exact rationals. Integral literals are
// exact; other literals are first rounded to float64, as they would be on
// decode.
func exactValues(nums []json.Number) ([]*big.Rat, bool, error) {
	out := make([]*big.Rat, len(nums))
	allInts := true
	for i, n := range nums {
		if isIntLiteral(n) {
			if r, ok := new(big.Rat).SetString(string(n)); ok {
				out[i] = r
				continue
			}
		}
		allInts = false
		f, err := numberValue(n)
		if err != nil {
			return nil, false, err
		}
		r := new(big.Rat)
		if r.SetFloat64(f) == nil {
			return nil, false, errors.New("cannot convert non-finite number")
		}
		out[i] = r
	}
	return out, allInts, nil
}

// floatValues rounds exact values to float64 for the stats package.
func floatValues(vals []*big.Rat) stats.Float64Data {
	out := make(stats.Float64Data, len(vals))
	for i, v := range vals {
		out[i], _ = v.Float64()
	}
	return out
}

// mean returns an exact integer when every input is an integer and the
// mean is whole, otherwise the mean rounded to 2 places.
func mean(nums []json.Number) (any, error) {
	vals, allInts, err := exactValues(nums)
	if err != nil {
		return nil, err
	}
	if allInts {
		sum := new(big.Rat)
		for _, v := range vals {
			sum.Add(sum, v)
		}
		avg := sum.Quo(sum, new(big.Rat).SetInt64(int64(len(vals))))
		if avg.IsInt() {
			return new(big.Int).Set(avg.Num()), nil
		}
	}
	avg, err := stats.Mean(floatValues(vals))
	if err != nil {
		return nil, err
	}
	return Float(round2(avg)), nil
}

// median returns the middle element as given when it is an integer in an
// odd-length input, and the rounded float median otherwise.
func median(nums []json.Number) (any, error) {
	vals, _, err := exactValues(nums)
	if err != nil {
		return nil, err
	}
	if len(vals)%2 == 1 {
		idx := make([]int, len(vals))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return vals[idx[i]].Cmp(vals[idx[j]]) < 0 })
		if mid := idx[len(idx)/2]; isIntLiteral(nums[mid]) {
			return new(big.Int).Set(vals[mid].Num()), nil
		}
	}
	med, err := stats.Median(floatValues(vals))
	if err != nil {
		return nil, err
	}
	return Float(round2(med)), nil
}

// sampleStdev computes the Bessel-corrected standard deviation.
func sampleStdev(nums []json.Number) (float64, error) {
	vals, _, err := exactValues(nums)
	if err != nil {
		return 0, err
	}
	return stats.StandardDeviationSample(floatValues(vals))
}

func parsePair(p pairArgs) (*big.Int, *big.Int, error) {
	a, err := parseInteger(p.A)
	if err != nil {
		return nil, nil, err
	}
	b, err := parseInteger(p.B)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// gcd is always non-negative; gcd(0, 0) is 0.
func gcd(a, b *big.Int) *big.Int {
	return new(big.Int).GCD(nil, nil, new(big.Int).Abs(a), new(big.Int).Abs(b))
}

// lcm is 0 when either input is 0.
func lcm(a, b *big.Int) *big.Int {
	if a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}
	prod := new(big.Int).Mul(a, b)
	prod.Abs(prod)
	return prod.Quo(prod, gcd(a, b))
}

func isPrime(ctx context.Context, n *big.Int) (bool, error) {
	if n.Cmp(big.NewInt(2)) < 0 {
		return false, nil
	}
	if !n.IsInt64() || n.Int64() > primeTrialLimit {
		return n.ProbablyPrime(20), nil
	}

	v := n.Int64()
	for i := int64(2); i*i <= v; i++ {
		if v%i == 0 {
			return false, nil
		}
		if i&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}
