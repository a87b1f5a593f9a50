// Package quantum scores value-trap and bubble risk with a quantum-inspired
// two-state model: a security sits in superposition between a benign state
// (genuine value / sustainable growth) and a dangerous one (trap / bubble).
// Each state gets a probability amplitude with a quantized energy phase;
// the danger probability is the Born-rule amplitude plus a regime-weighted
// interference term between the two states.
package quantum

import (
	"math"
	"math/cmplx"
)

// energyScale maps raw state energies onto [-pi, pi] before quantization.
const energyScale = math.Pi / 2.0

// interferenceCap bounds the multimodal fat-tail correction.
const interferenceCap = 0.2

// energyLevels are the discrete phases a state may occupy.
var energyLevels = [5]float64{-math.Pi, -math.Pi / 2, 0, math.Pi / 2, math.Pi}

// QuantumProbabilityCalculator evaluates the two-state model. The time
// parameter advances the relative phase; 1.0 is the normalized default.
type QuantumProbabilityCalculator struct {
	timeParam float64
}

// NewQuantumProbabilityCalculator creates a calculator at normalized time.
func NewQuantumProbabilityCalculator() *QuantumProbabilityCalculator {
	return &QuantumProbabilityCalculator{timeParam: 1.0}
}

// SetTimeParameter sets the phase-evolution time parameter.
func (q *QuantumProbabilityCalculator) SetTimeParameter(t float64) {
	q.timeParam = t
}

// twoState bundles one benign/dangerous state pair after normalization.
type twoState struct {
	pSafe, pDanger           float64
	safeEnergy, dangerEnergy float64
}

// quantize clamps a raw energy to [-pi, pi] and snaps it to the nearest
// discrete level.
func quantize(rawEnergy float64) float64 {
	e := math.Max(-math.Pi, math.Min(math.Pi, rawEnergy))
	closest := energyLevels[0]
	for _, level := range energyLevels[1:] {
		if math.Abs(e-level) < math.Abs(e-closest) {
			closest = level
		}
	}
	return closest
}

// normalize rescales the state pair so the probabilities sum to 1. A
// degenerate pair collapses to the maximally mixed state.
func normalize(pSafe, pDanger float64) (float64, float64) {
	total := pSafe + pDanger
	if total <= 0 {
		return 0.5, 0.5
	}
	return pSafe / total, pDanger / total
}

// amplitude builds sqrt(P)*exp(i*E*t) for one state.
func (q *QuantumProbabilityCalculator) amplitude(probability, energy float64) complex128 {
	p := math.Max(0, math.Min(1, probability))
	return complex(math.Sqrt(p), 0) * cmplx.Exp(complex(0, energy*q.timeParam))
}

// interference is the cross term 2*sqrt(P1*P2)*cos(dE*t).
func (q *QuantumProbabilityCalculator) interference(s twoState) float64 {
	deltaE := s.dangerEnergy - s.safeEnergy
	return 2 * math.Sqrt(s.pSafe*s.pDanger) * math.Cos(deltaE*q.timeParam)
}

// regimeWeight selects how much the interference term counts: bull regimes
// lean on the quantum signal for earlier detection, bear regimes lean on
// the classical thresholds.
func regimeWeight(regimeScore float64) float64 {
	switch {
	case regimeScore > 0.5:
		return 0.4
	case regimeScore < -0.5:
		return 0.2
	default:
		return 0.3
	}
}

// dangerProbability is the shared final step: Born rule on the dangerous
// state's amplitude, plus regime-weighted interference, clamped to [0, 1].
func (q *QuantumProbabilityCalculator) dangerProbability(s twoState, regimeScore, correction float64) float64 {
	p := cmplx.Abs(q.amplitude(s.pDanger, s.dangerEnergy))
	prob := p*p + regimeWeight(regimeScore)*q.interference(s) + correction
	return math.Min(1, math.Max(0, prob))
}

// CalculateValueTrapProbability scores how likely a cheap security is a
// value trap rather than a value opportunity. Securities less than 20%
// below the market multiple are not cheap enough to be traps at all.
func (q *QuantumProbabilityCalculator) CalculateValueTrapProbability(
	peVsMarket float64,
	fundamentalsScore float64,
	longTermScore float64,
	momentumScore float64,
	volatility float64,
	regimeScore float64,
) float64 {
	if peVsMarket >= -0.20 {
		return 0.0
	}

	normVol := math.Min(1, volatility/0.50)
	normMomentum := math.Min(1, math.Max(0, (momentumScore+1)/2))
	cheapness := math.Min(1, math.Abs(peVsMarket)/0.50)

	s := twoState{
		// Value state: cheap with sound fundamentals and momentum behind it.
		pSafe: cheapness * fundamentalsScore * longTermScore * (1 + normMomentum) * (1 - normVol),
		// Trap state: cheap and still deteriorating.
		pDanger:      cheapness * (1 - fundamentalsScore) * (1 - longTermScore) * (1 - normMomentum) * normVol,
		safeEnergy:   quantize(-energyScale * (fundamentalsScore + longTermScore + (1 - normVol))),
		dangerEnergy: quantize(energyScale * (cheapness - fundamentalsScore - longTermScore - normMomentum - normVol)),
	}
	s.pSafe, s.pDanger = normalize(s.pSafe, s.pDanger)

	return q.dangerProbability(s, regimeScore, 0)
}

// CalculateBubbleProbability scores how likely a fast riser is a bubble:
// high growth carried by poor risk-adjusted returns and high volatility.
// kurtosis, when known, feeds a fat-tail correction.
func (q *QuantumProbabilityCalculator) CalculateBubbleProbability(
	cagr float64,
	sharpe float64,
	sortino float64,
	volatility float64,
	fundamentalsScore float64,
	regimeScore float64,
	kurtosis *float64,
) float64 {
	normCAGR := math.Min(1, cagr/0.20)
	normSharpe := math.Min(1, math.Max(0, (sharpe+2)/4))
	normSortino := math.Min(1, math.Max(0, (sortino+2)/4))
	normVol := math.Min(1, volatility/0.50)

	s := twoState{
		// Sustainable state: fundamentals support the growth.
		pSafe: fundamentalsScore * (1 - normVol) * (1 + normSortino*0.5),
		// Bubble state: returns without risk-adjusted quality.
		pDanger:      normCAGR * (1 - normSharpe) * normVol,
		safeEnergy:   quantize(-energyScale * (fundamentalsScore + (1 - normVol) + normSortino*0.5)),
		dangerEnergy: quantize(energyScale * (normCAGR - (1 - normSharpe) - normVol)),
	}
	s.pSafe, s.pDanger = normalize(s.pSafe, s.pDanger)

	return q.dangerProbability(s, regimeScore, 0.15*fatTailCorrection(volatility, kurtosis))
}

// fatTailCorrection widens the bubble probability when the return
// distribution is fat-tailed: volatility times a kurtosis factor, capped.
func fatTailCorrection(volatility float64, kurtosis *float64) float64 {
	kurtosisFactor := 1.0
	if kurtosis != nil {
		k := math.Max(0, math.Min(10, *kurtosis))
		kurtosisFactor = 1 + k/3
	}
	return math.Min(interferenceCap, 0.1*volatility*kurtosisFactor)
}
