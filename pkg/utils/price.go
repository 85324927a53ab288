package utils

import (
	"math"
	"strconv"
	"strings"
)

var priceNoise = strings.NewReplacer(
	"₹", "",
	"$", "",
	"Rs.", "",
	"Rs", "",
	"INR", "",
	",", "",
	"\u00a0", "",
	" ", "",
)

// ParsePrice converts a sheet price cell to float64. Anything that does not
// read as a non-negative number becomes 0.
func ParsePrice(priceStr string) float64 {
	cleanPrice := strings.TrimSpace(priceNoise.Replace(priceStr))
	if cleanPrice == "" {
		return 0
	}

	price, err := strconv.ParseFloat(cleanPrice, 64)
	if err != nil {
		return 0
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}

	return price
}
