package models

import "strings"

// CustomerCategory classifies a customer for filtering and display.
type CustomerCategory string

const (
	CategoryNormal      CustomerCategory = "normal"
	CategoryVIP         CustomerCategory = "vip"
	CategoryProblematic CustomerCategory = "problematic"
)

// ParseCustomerCategory maps free text to a category, falling back to normal.
func ParseCustomerCategory(s string) CustomerCategory {
	switch CustomerCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryVIP:
		return CategoryVIP
	case CategoryProblematic:
		return CategoryProblematic
	default:
		return CategoryNormal
	}
}

type Customer struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Phone    string           `json:"phone"`
	Address  string           `json:"address"`
	Notes    string           `json:"notes"`
	Category CustomerCategory `json:"category"`
}

// Normalized returns the customer with an unknown or missing category set to normal.
func (c Customer) Normalized() Customer {
	c.Category = ParseCustomerCategory(string(c.Category))
	return c
}
