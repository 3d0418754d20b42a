package domain

// CollateralAsset is a configured asset the bot may pledge when borrowing.
// Priority is ascending: lower values are tried first.
type CollateralAsset struct {
	Coin      string
	Enabled   bool
	MinAmount float64
	MaxAmount float64
	LTV       float64 // loan-to-value, in (0,1]
	Priority  int
}
