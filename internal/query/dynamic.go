package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/veloxcart/catalog-cache/pkg/enums"
)

// Row is one streamed candidate, already scoped to the caller's
// pricing context by the SQL pass.
type Row struct {
	ProductID         int64
	ProducerID        *int64
	DisplayAmountID   *int64
	DisplayDeliveryID *int64
	IsSold            bool
	AttributeValueIDs string
	Price             decimal.Decimal
	PriceVat          decimal.Decimal
}

// AttributeFilter selects products by attribute values. Mode decides
// whether every selected value must be present or any one suffices.
type AttributeFilter struct {
	AttributeID int64
	Mode        enums.AttributeMode
	ValueIDs    []int64
}

// PriceRange bounds a price column. Nil ends are unbounded.
type PriceRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// AttributeRule matches the product's concatenated attribute-value set
// against a list of AttributeFilters. Distinct attributes always
// combine with AND.
type AttributeRule struct{}

func (AttributeRule) Matches(row Row, value any) (bool, error) {
	filters, ok := value.([]AttributeFilter)
	if !ok {
		return false, fmt.Errorf("attribute filter expects []AttributeFilter, got %T", value)
	}
	for _, filter := range filters {
		if !filter.Mode.IsValid() {
			return false, fmt.Errorf("attribute %d: unknown mode %q", filter.AttributeID, filter.Mode)
		}
		if !matchAttribute(row.AttributeValueIDs, filter) {
			return false, nil
		}
	}
	return true, nil
}

func matchAttribute(valueSet string, filter AttributeFilter) bool {
	if len(filter.ValueIDs) == 0 {
		return true
	}
	for _, valueID := range filter.ValueIDs {
		present := strings.Contains(valueSet, "|"+strconv.FormatInt(valueID, 10)+"|")
		switch filter.Mode {
		case enums.AttributeModeOr:
			if present {
				return true
			}
		default:
			if !present {
				return false
			}
		}
	}
	return filter.Mode != enums.AttributeModeOr
}

// PriceRangeRule bounds the row's price or priceVat. Marked as a price
// bound so aggregate price bounds ignore it.
type PriceRangeRule struct {
	VAT bool
}

func (PriceRangeRule) PriceBound() {}

func (r PriceRangeRule) Matches(row Row, value any) (bool, error) {
	bounds, ok := value.(PriceRange)
	if !ok {
		return false, fmt.Errorf("price range filter expects PriceRange, got %T", value)
	}
	price := row.Price
	if r.VAT {
		price = row.PriceVat
	}
	if bounds.Min != nil && price.LessThan(*bounds.Min) {
		return false, nil
	}
	if bounds.Max != nil && price.GreaterThan(*bounds.Max) {
		return false, nil
	}
	return true, nil
}

// MembershipRule matches a nullable id column against a selected id
// set. Rows with no value never match.
type MembershipRule struct {
	Field func(Row) *int64
}

func (r MembershipRule) Matches(row Row, value any) (bool, error) {
	ids, ok := value.([]int64)
	if !ok {
		return false, fmt.Errorf("membership filter expects []int64, got %T", value)
	}
	id := r.Field(row)
	if id == nil {
		return false, nil
	}
	for _, candidate := range ids {
		if candidate == *id {
			return true, nil
		}
	}
	return false, nil
}

// SoldRule matches the denormalized sold flag.
type SoldRule struct{}

func (SoldRule) Matches(row Row, value any) (bool, error) {
	sold, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("sold filter expects bool, got %T", value)
	}
	return row.IsSold == sold, nil
}
