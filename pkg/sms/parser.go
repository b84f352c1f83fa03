// Package sms classifies mobile-money SMS notifications and extracts
// transaction records from them.
//
// Extraction runs as a fixed sequence of steps: network, amount, direction,
// reference, counterparty. Within each step the rules are tried in order and
// the first match wins. Only the network and amount steps can reject a message.
package sms

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCurrency is the currency code used by the package-level functions.
const DefaultCurrency = "UGX"

var (
	// ErrNoNetworkDetected is returned when the body names neither carrier.
	ErrNoNetworkDetected = errors.New("no network detected")
	// ErrNoValidAmount is returned when no amount pattern matches or the
	// matched amount is not a finite positive number.
	ErrNoValidAmount = errors.New("no valid amount")
)

// Sender labels that mark a message as coming from a mobile-money service.
var knownSenders = []string{"mtn", "airtel", "mobile money"}

// Body keywords that mark a message as mobile-money related. The configured
// currency code is added per parser.
var relevanceKeywords = []string{"received", "sent", "paid", "withdrawn", "mobile money", "transaction"}

// networkRule maps a lowercase marker to its carrier.
type networkRule struct {
	marker  string
	network Network
}

var networkRules = []networkRule{
	{marker: "mtn", network: MTN},
	{marker: "airtel", network: Airtel},
}

var (
	cashInKeywords  = []string{"received", "receive", "deposited", "deposit", "credited"}
	cashOutKeywords = []string{"sent", "send", "paid", "pay", "withdrawn", "withdraw", "debited", "transferred", "transfer"}
)

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i:\b(?:Reference|Ref))[\s:]*([A-Z0-9]+)`),
	regexp.MustCompile(`(?i:\b(?:Transaction|Txn))(?:\s+(?i:ID))?[\s:]*([A-Z0-9]+)`),
	regexp.MustCompile(`(?i:\bID)[\s:]*([A-Z0-9]+)`),
}

var (
	// The leftmost "from"/"to" name wins, taking a second capitalized word
	// when one follows.
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:from|to)\s+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)`),
		regexp.MustCompile(`\b(?:from|to)\s+([A-Z][a-z]+[ \t]+[A-Z][a-z]+)`),
	}
	phonePattern = regexp.MustCompile(`(?i)\b(?:from|to)\s*(\+?\d{10,13})`)
)

// Config holds parser settings.
type Config struct {
	// Currency is the code that brackets amounts in message bodies.
	// Defaults to DefaultCurrency.
	Currency string
}

// Parser classifies and parses messages. A Parser is immutable after New and
// safe for concurrent use.
type Parser struct {
	currency       string
	keywords       []string
	amountPatterns []*regexp.Regexp
}

// New builds a parser for the given configuration.
func New(cfg Config) *Parser {
	currency := strings.TrimSpace(cfg.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	code := regexp.QuoteMeta(currency)

	keywords := make([]string, 0, len(relevanceKeywords)+1)
	keywords = append(keywords, strings.ToLower(currency))
	keywords = append(keywords, relevanceKeywords...)

	return &Parser{
		currency: strings.ToUpper(currency),
		keywords: keywords,
		amountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + code + `\s*([\d,]+)`),
			regexp.MustCompile(`(?i)` + code + `([\d,]+)`),
			regexp.MustCompile(`(?i)([\d,]+)\s*` + code),
			regexp.MustCompile(`(?i)([\d,]+)` + code),
		},
	}
}

// Currency returns the currency code the parser matches amounts against.
func (p *Parser) Currency() string {
	return p.currency
}

// IsRelevant reports whether the message looks like a mobile-money
// notification. It is a loose filter: Parse rejects false positives.
func (p *Parser) IsRelevant(sender, body string) bool {
	senderLower := strings.ToLower(sender)
	for _, s := range knownSenders {
		if strings.Contains(senderLower, s) {
			return true
		}
	}

	bodyLower := strings.ToLower(body)
	return containsAny(bodyLower, p.keywords)
}

// Parse extracts a transaction from body. sender is used as the counterparty
// when the body does not name one. The returned error is ErrNoNetworkDetected
// or ErrNoValidAmount.
func (p *Parser) Parse(sender, body string) (Transaction, error) {
	network, ok := detectNetwork(body)
	if !ok {
		return Transaction{}, ErrNoNetworkDetected
	}

	amount, ok := p.extractAmount(body)
	if !ok {
		return Transaction{}, ErrNoValidAmount
	}

	counterparty := extractCounterparty(body)
	if counterparty == "" {
		counterparty = sender
	}

	return Transaction{
		Amount:       amount,
		Direction:    classifyDirection(body),
		Network:      network,
		Counterparty: counterparty,
		Reference:    extractReference(body),
	}, nil
}

func detectNetwork(body string) (Network, bool) {
	lower := strings.ToLower(body)
	for _, rule := range networkRules {
		if strings.Contains(lower, rule.marker) {
			return rule.network, true
		}
	}
	return 0, false
}

// extractAmount uses the first pattern that matches; later patterns are not
// consulted even if the matched text does not parse.
func (p *Parser) extractAmount(body string) (float64, bool) {
	for _, pattern := range p.amountPatterns {
		m := pattern.FindStringSubmatch(body)
		if len(m) < 2 {
			continue
		}

		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || math.IsInf(amount, 0) || math.IsNaN(amount) || amount <= 0 {
			return 0, false
		}
		return amount, true
	}
	return 0, false
}

// classifyDirection never fails: Cash In keywords win over Cash Out keywords,
// and a message with neither is treated as Cash In.
func classifyDirection(body string) Direction {
	lower := strings.ToLower(body)
	if containsAny(lower, cashInKeywords) {
		return CashIn
	}
	if containsAny(lower, cashOutKeywords) {
		return CashOut
	}
	return CashIn
}

func extractReference(body string) string {
	return firstSubmatch(body, referencePatterns)
}

func extractCounterparty(body string) string {
	if name := firstSubmatch(body, namePatterns); name != "" {
		return name
	}
	if m := phonePattern.FindStringSubmatch(body); len(m) > 1 {
		return m[1]
	}
	return ""
}

func firstSubmatch(s string, patterns []*regexp.Regexp) string {
	for _, pattern := range patterns {
		if m := pattern.FindStringSubmatch(s); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var defaultParser = New(Config{})

// IsRelevant reports whether the message looks like a UGX mobile-money
// notification.
func IsRelevant(sender, body string) bool {
	return defaultParser.IsRelevant(sender, body)
}

// Parse extracts a transaction using the default UGX parser.
func Parse(sender, body string) (Transaction, error) {
	return defaultParser.Parse(sender, body)
}
