package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const reportWidth = 80

func printHeader(title string) {
	fmt.Println("\n" + strings.Repeat("=", reportWidth))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", reportWidth))
}

func printFooter(message string) {
	fmt.Println("\n" + strings.Repeat("=", reportWidth))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", reportWidth) + "\n")
}

// printRule separates a printed payload (the PIX copy-paste code) from the report
func printRule() {
	fmt.Println("\n" + strings.Repeat("-", reportWidth))
}

// printBoxTitle opens a boxed record; rows follow with listPrefix or "│  "
func printBoxTitle(format string, args ...any) {
	fmt.Printf("\n┌─ "+format+"\n", args...)
}

func printBoxSeparator() {
	fmt.Println("├" + strings.Repeat("─", reportWidth-2))
}

func listPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateTime)
}

// formatBRL renders centavo precision, e.g. "1500.00 BRL"
func formatBRL(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " BRL"
}
