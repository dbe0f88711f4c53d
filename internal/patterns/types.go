package patterns

// PatternType identifies a recognized market setup
type PatternType string

const (
	MegaPumpAndDump     PatternType = "mega_pump_and_dump"
	VolatilitySqueeze   PatternType = "volatility_squeeze"
	SmartMoneyTrap      PatternType = "smart_money_trap"
	AlgorithmicStopHunt PatternType = "algorithmic_stop_hunt"
	SmartMoneyReversal  PatternType = "smart_money_reversal"
)

// SignalType is the trade direction a pattern suggests
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// Match is a classified, confidence-scored recognition of a short-term
// price/volume shape. Metadata carries the numeric inputs that produced the
// match so results can be audited and backtested.
type Match struct {
	Type       PatternType        `json:"type"`
	Address    string             `json:"address"`
	Confidence float64            `json:"confidence"` // 0-100
	Signal     SignalType         `json:"signal"`
	Metadata   map[string]float64 `json:"metadata"`
	Timestamp  int64              `json:"timestamp"` // ms, taken from the triggering bar/tick
}
