package utils

import (
	"math"
	"os"
	"strconv"
	"strings"
)

// Environment utilities
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Answer checking utilities
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// AnswersMatch compares a submitted answer against the expected one,
// ignoring case and surrounding whitespace.
func AnswersMatch(expected, submitted string) bool {
	return NormalizeAnswer(expected) == NormalizeAnswer(submitted)
}

// Numeric utilities
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ClampFloat(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}

// Round2 rounds to two decimal places, matching how scores and averages
// are stored.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// Round4 rounds to four decimal places, used for priority scores.
func Round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

// UniqueStrings filters out empty strings and duplicates, preserving order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
