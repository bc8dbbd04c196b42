package monitor

// FillDetector решает по размеру позиции, сработал ли TP1.
// Интерфейс, а не функция: поллинг-эвристику можно будет заменить
// стримом ордеров, не трогая сам цикл монитора.
type FillDetector interface {
	TP1Hit(initial, current, expectedTP1 float64) bool
}

// ReductionHeuristic — дефолтный детектор: позиция закрыта целиком, либо
// уменьшилась на величину, близкую к ожидаемому объёму TP1 (±5%).
type ReductionHeuristic struct {
	Tolerance float64 // доля, по умолчанию 0.05
}

func (h ReductionHeuristic) TP1Hit(initial, current, expectedTP1 float64) bool {
	if current <= 0 {
		// полное закрытие приравниваем к TP1 — чистить хвосты нужно так же
		return true
	}
	reduction := initial - current
	if reduction <= 0 || expectedTP1 <= 0 {
		return false
	}
	tol := h.Tolerance
	if tol <= 0 {
		tol = 0.05
	}
	return reduction >= expectedTP1*(1-tol) && reduction <= expectedTP1*(1+tol)
}
