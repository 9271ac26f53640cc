package imarket

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxDecimals is the largest supported currency precision
const MaxDecimals = 18

// ParseAmount converts a human-readable decimal string to integer base units.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals must be between 0 and %d, got: %d", MaxDecimals, decimals)
	}

	amount = strings.TrimSpace(amount)
	parts := strings.Split(amount, ".")
	if len(parts) > 2 || parts[0] == "" {
		return nil, fmt.Errorf("invalid amount format: %q", amount)
	}

	integerPart := parts[0]
	decimalPart := ""
	if len(parts) == 2 {
		decimalPart = parts[1]
	}

	// Pad or truncate the decimal part to match decimals
	if len(decimalPart) > decimals {
		decimalPart = decimalPart[:decimals]
	} else {
		decimalPart = decimalPart + strings.Repeat("0", decimals-len(decimalPart))
	}

	result, ok := new(big.Int).SetString(integerPart+decimalPart, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %q", amount)
	}
	if result.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative, got: %q", amount)
	}

	// Amounts travel as uint256 on the wire
	if result.BitLen() > 256 {
		return nil, fmt.Errorf("amount too large for uint256: %s", result.String())
	}

	return result, nil
}
