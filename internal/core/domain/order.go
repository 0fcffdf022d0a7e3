package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidItem      = errors.New("invalid order item")
	ErrInvalidOperation = errors.New("invalid stock operation")
)

type Operation int

const (
	Increment Operation = iota + 1
	Decrement
)

// ParseOperation accepts the symbolic and word forms used by order workflows.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "increment", "in", "check-in":
		return Increment, nil
	case "-", "decrement", "out", "check-out":
		return Decrement, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
}

func (o Operation) Valid() bool {
	return o == Increment || o == Decrement
}

// Delta returns quantity signed according to the operation.
func (o Operation) Delta(quantity int64) int64 {
	if o == Decrement {
		return -quantity
	}
	return quantity
}

func (o Operation) String() string {
	switch o {
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	}
	return "unknown"
}

// Line is the canonical form every order item shape normalizes to.
type Line struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.NullDecimal
}

// Item is an order line in any accepted shape.
type Item interface {
	Line() (Line, error)
}

// OrderItem is the struct shape produced by the order workflow.
type OrderItem struct {
	ProductID int64               `json:"product_id"`
	Quantity  int64               `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
}

func (i OrderItem) Line() (Line, error) {
	return Line{ProductID: i.ProductID, Quantity: i.Quantity, UnitPrice: i.UnitPrice}, nil
}

// ItemMap is the keyed shape, typically decoded from JSON.
type ItemMap map[string]any

func (m ItemMap) Line() (Line, error) {
	rawID, ok := m["product_id"]
	if !ok || rawID == nil {
		return Line{}, fmt.Errorf("%w: missing product_id", ErrInvalidItem)
	}
	productID, err := toInt64(rawID)
	if err != nil {
		return Line{}, fmt.Errorf("%w: product_id: %v", ErrInvalidItem, err)
	}

	rawQty, ok := m["quantity"]
	if !ok || rawQty == nil {
		return Line{}, fmt.Errorf("%w: missing quantity", ErrInvalidItem)
	}
	quantity, err := toInt64(rawQty)
	if err != nil {
		return Line{}, fmt.Errorf("%w: quantity: %v", ErrInvalidItem, err)
	}

	line := Line{ProductID: productID, Quantity: quantity}
	if raw, ok := m["unit_price"]; ok && raw != nil {
		price, err := toDecimal(raw)
		if err != nil {
			return Line{}, fmt.Errorf("%w: unit_price: %v", ErrInvalidItem, err)
		}
		line.UnitPrice = decimal.NullDecimal{Decimal: price, Valid: true}
	}
	return line, nil
}

// NormalizeItems converts mixed item shapes into lines, preserving input order.
func NormalizeItems(items []Item) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for idx, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %d is nil", ErrInvalidItem, idx)
		}
		line, err := item.Line()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
		if n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("out of range: %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
}
