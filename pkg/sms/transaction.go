package sms

// Direction tells whether money arrived in or left the mobile-money account.
type Direction int

const (
	// CashIn is money arriving into the account.
	CashIn Direction = iota
	// CashOut is money leaving the account.
	CashOut
)

// String returns the display label used by storage and the CLI.
func (d Direction) String() string {
	switch d {
	case CashIn:
		return "Cash In"
	case CashOut:
		return "Cash Out"
	default:
		return "Unknown"
	}
}

// Network is the mobile-money provider that issued the message.
type Network int

const (
	// MTN is MTN Mobile Money.
	MTN Network = iota
	// Airtel is Airtel Money.
	Airtel
)

// String returns the display label used by storage and the CLI.
func (n Network) String() string {
	switch n {
	case MTN:
		return "MTN"
	case Airtel:
		return "AIRTEL"
	default:
		return "UNKNOWN"
	}
}

// Transaction is the structured result of a successful parse.
type Transaction struct {
	// Amount is always finite and strictly positive.
	Amount    float64
	Direction Direction
	Network   Network
	// Counterparty is a name or phone number taken from the body, or the
	// sender label when the body names nobody.
	Counterparty string
	// Reference is empty when the message carries no reference code.
	Reference string
}
