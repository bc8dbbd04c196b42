package risk

import "fmt"

// SplitByAllocations раскладывает исполненный объём по долям тейков.
// Каждая доля округляется вниз к шагу, остаток от округления целиком
// забирает последняя нога — сумма всегда равна filled ровно.
func SplitByAllocations(filled float64, allocPct []float64, step float64) ([]float64, error) {
	if filled <= 0 {
		return nil, fmt.Errorf("filled <= 0")
	}
	if len(allocPct) == 0 {
		return nil, fmt.Errorf("empty allocations")
	}
	var sum float64
	for _, p := range allocPct {
		if p < 0 {
			return nil, fmt.Errorf("negative allocation %.2f", p)
		}
		sum += p
	}
	if sum > 100+1e-9 {
		return nil, fmt.Errorf("allocations sum %.2f > 100", sum)
	}

	out := make([]float64, len(allocPct))
	var used float64
	for i, p := range allocPct[:len(allocPct)-1] {
		q := AdjustToStep(filled*p/100.0, step, RoundDown)
		out[i] = q
		used += q
	}
	// последняя нога: всё, что осталось
	last := filled - used
	if last < 0 {
		last = 0
	}
	out[len(out)-1] = last
	return out, nil
}
