package pricing

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// LayoutFee is the flat surcharge (in pesos) when the customer does not
	// supply print-ready artwork and staff have to produce the layout.
	LayoutFee = 150.0

	// EyeletFee is charged per eyelet per unit on solvent tarp orders.
	EyeletFee = 1.0

	// WholesaleMinQuantity is the quantity at which wholesale pricing kicks in.
	WholesaleMinQuantity = 10

	// Minimum print size is 2 x 3 inches, orientation-agnostic: the shorter
	// side must be at least MinShortSide and the longer at least MinLongSide.
	MinShortSide = 2.0
	MinLongSide  = 3.0
)

// DimensionError is the blocking message shown when both dimensions parse but
// the order is below the minimum print size.
const DimensionError = "Minimum print size is 2 x 3 inches"

// dimensionCategories are the product categories priced by area, for which
// height and width are required on the order form.
var dimensionCategories = map[string]bool{
	"Tarp":       true,
	"Sticker":    true,
	"Cloth":      true,
	"Film":       true,
	"Print":      true,
	"Photopaper": true,
}

// RequiresDimensions reports whether orders in the given product category
// must carry height and width.
func RequiresDimensions(category string) bool {
	return dimensionCategories[category]
}

// Variant is a priced SKU of a product. WholesalePrice is nil when the
// catalog has no wholesale tier for the variant.
type Variant struct {
	RetailPrice    float64
	WholesalePrice *float64
}

// Draft holds the order form exactly as the customer typed it. Quantity,
// height and width stay raw strings: the form feeds every keystroke through
// Compute, and a half-typed number must read as "not yet provided" rather
// than an error.
type Draft struct {
	Category string
	Variant  *Variant

	Quantity string
	Height   string
	Width    string

	HasFile     bool
	SolventTarp bool
	Eyelets     int

	// Submit-gate fields, ignored by the live price preview.
	CustomerName string
	Contact      string
	Address      string
	HasVariants  bool // the product carries variants, so one must be picked
	FileAttached bool // an artwork file is actually attached
	MinQtyTen    bool // product class with a minimum order of ten (DTF print)
}

// Quote is what the form renders after each recompute. DimWarning is live
// feedback while typing; DimError is the submission blocker. FormValid is the
// stricter submit-time gate.
type Quote struct {
	Total      float64 `json:"total"`
	DimWarning string  `json:"dim_warning,omitempty"`
	DimError   string  `json:"dim_error,omitempty"`
	FormValid  bool    `json:"form_valid"`
}

// Compute prices a draft and evaluates its validity. It is a pure function:
// incomplete input never errors, it just keeps FormValid false and leaves the
// incomplete term neutral in the total.
func Compute(d Draft) Quote {
	var q Quote

	qty, qtyOK := ParseQuantity(d.Quantity)

	needsDims := RequiresDimensions(d.Category)
	var height, width float64
	dimsComplete := false
	dimsValid := false
	if needsDims {
		var hOK, wOK bool
		height, hOK = ParseDecimal(d.Height)
		width, wOK = ParseDecimal(d.Width)
		dimsComplete = hOK && wOK
		if dimsComplete {
			small, large := height, width
			if small > large {
				small, large = large, small
			}
			dimsValid = small >= MinShortSide && large >= MinLongSide
			if !dimsValid {
				q.DimError = DimensionError
			}
			q.DimWarning = dimensionWarning(small, large)
		}
	}

	unit := unitPrice(d.Variant, qty)

	area := 1.0
	if needsDims && dimsComplete {
		if a := height * width; a > 0 {
			area = a
		}
	}

	total := unit * area * float64(qty)
	if !d.HasFile {
		total += LayoutFee
	}
	if d.SolventTarp && d.Eyelets > 0 {
		total += float64(d.Eyelets) * EyeletFee * float64(qty)
	}
	if needsDims && dimsComplete && !dimsValid {
		total = 0
	}
	q.Total = total

	q.FormValid = formValid(d, qty, qtyOK, needsDims, dimsComplete, dimsValid)
	return q
}

// unitPrice selects the wholesale tier at WholesaleMinQuantity and above,
// falling back to retail when the variant has no wholesale price. A missing
// variant prices at zero.
func unitPrice(v *Variant, qty int) float64 {
	if v == nil {
		return 0
	}
	if qty >= WholesaleMinQuantity && v.WholesalePrice != nil {
		return *v.WholesalePrice
	}
	return v.RetailPrice
}

func formValid(d Draft, qty int, qtyOK, needsDims, dimsComplete, dimsValid bool) bool {
	if strings.TrimSpace(d.CustomerName) == "" ||
		strings.TrimSpace(d.Contact) == "" ||
		strings.TrimSpace(d.Address) == "" {
		return false
	}
	if d.HasVariants && d.Variant == nil {
		return false
	}
	minQty := 1
	if d.MinQtyTen {
		minQty = WholesaleMinQuantity
	}
	if !qtyOK || qty < minQty {
		return false
	}
	if needsDims && (!dimsComplete || !dimsValid) {
		return false
	}
	if d.SolventTarp && d.Eyelets < 0 {
		return false
	}
	if d.HasFile && !d.FileAttached {
		return false
	}
	return true
}

// dimensionWarning names the side(s) below the minimum, for live feedback
// while the customer is still typing.
func dimensionWarning(small, large float64) string {
	switch {
	case small < MinShortSide && large < MinLongSide:
		return fmt.Sprintf("Both sides are under the %g x %g inch minimum", MinShortSide, MinLongSide)
	case small < MinShortSide:
		return fmt.Sprintf("The shorter side is under the %g inch minimum", MinShortSide)
	case large < MinLongSide:
		return fmt.Sprintf("The longer side is under the %g inch minimum", MinLongSide)
	}
	return ""
}

// ParseDecimal parses a form field as a non-negative decimal, accepting a
// comma as the decimal separator. Empty and non-numeric input report !ok,
// meaning "not yet provided".
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseQuantity parses the quantity field as a non-negative integer. Like
// ParseDecimal it tolerates surrounding whitespace, so callers persisting an
// admitted draft must use it too or they will disagree with the gate.
func ParseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
