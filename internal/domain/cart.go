package domain

// AcquisitionType is the mode by which a cart line is obtained.
type AcquisitionType string

const (
	AcquisitionPurchase     AcquisitionType = "purchase"
	AcquisitionRental       AcquisitionType = "rental"
	AcquisitionSubscription AcquisitionType = "subscription"
)

func (a AcquisitionType) Valid() bool {
	switch a {
	case AcquisitionPurchase, AcquisitionRental, AcquisitionSubscription:
		return true
	}
	return false
}

// SubscriptionPlan is the billing cadence of a package subscription.
type SubscriptionPlan string

const (
	PlanMonthly    SubscriptionPlan = "monthly"
	PlanSemiannual SubscriptionPlan = "semiannual"
)

// IncludedProduct is descriptive only and takes no part in line identity.
type IncludedProduct struct {
	Name string `json:"name" bson:"name"`
	Slug string `json:"slug" bson:"slug"`
}

type CartItem struct {
	ProductSlug      string            `json:"product_slug" bson:"product_slug"`
	Title            string            `json:"title" bson:"title"`
	UnitPriceCents   int64             `json:"unit_price_cents" bson:"unit_price_cents"`
	Quantity         int               `json:"quantity" bson:"quantity"`
	AcquisitionType  AcquisitionType   `json:"acquisition_type" bson:"acquisition_type"`
	RentalMonths     *int              `json:"rental_months,omitempty" bson:"rental_months,omitempty"`
	IsPackage        bool              `json:"is_package" bson:"is_package"`
	PackageID        string            `json:"package_id,omitempty" bson:"package_id,omitempty"`
	SubscriptionPlan SubscriptionPlan  `json:"subscription_plan,omitempty" bson:"subscription_plan,omitempty"`
	IncludedProducts []IncludedProduct `json:"included_products,omitempty" bson:"included_products,omitempty"`
}

// SameLine reports whether two entries are the same cart line and must be
// merged rather than duplicated. Packages match on (package id, plan),
// non-packages on (slug, acquisition type, rental months). A package and a
// non-package never match, even when their slugs coincide.
func (i CartItem) SameLine(other CartItem) bool {
	if i.IsPackage != other.IsPackage {
		return false
	}
	if i.IsPackage {
		return i.PackageID == other.PackageID && i.SubscriptionPlan == other.SubscriptionPlan
	}
	return i.ProductSlug == other.ProductSlug &&
		i.AcquisitionType == other.AcquisitionType &&
		equalRentalMonths(i.RentalMonths, other.RentalMonths)
}

func equalRentalMonths(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Cart holds the line items of one session. Insertion order is preserved.
type Cart struct {
	Items []CartItem `json:"items"`
}

// Add merges the item into an existing line when the identity rule matches,
// incrementing its quantity by one, and appends a new line with quantity one
// otherwise.
func (c *Cart) Add(item CartItem) {
	for idx := range c.Items {
		if c.Items[idx].SameLine(item) {
			c.Items[idx].Quantity++
			return
		}
	}
	item.Quantity = 1
	c.Items = append(c.Items, item)
}

// lineIndex finds a line by the removal rule: a non-empty packageID matches
// the package line with that id, otherwise the non-package line with the slug.
func (c *Cart) lineIndex(productSlug, packageID string) int {
	for idx, it := range c.Items {
		if packageID != "" {
			if it.IsPackage && it.PackageID == packageID {
				return idx
			}
			continue
		}
		if !it.IsPackage && it.ProductSlug == productSlug {
			return idx
		}
	}
	return -1
}

// Remove drops the matched line. Removing an absent line is a no-op.
func (c *Cart) Remove(productSlug, packageID string) {
	idx := c.lineIndex(productSlug, packageID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
}

// SetQuantity sets the quantity on the matched line. A quantity of zero or
// less removes the line. Unmatched lines are a no-op.
func (c *Cart) SetQuantity(productSlug string, quantity int, packageID string) {
	if quantity <= 0 {
		c.Remove(productSlug, packageID)
		return
	}
	idx := c.lineIndex(productSlug, packageID)
	if idx < 0 {
		return
	}
	c.Items[idx].Quantity = quantity
}

func (c *Cart) Clear() {
	c.Items = nil
}

func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// TotalCents recomputes the cart total from the item list.
func (c *Cart) TotalCents() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.UnitPriceCents * int64(it.Quantity)
	}
	return total
}

// ItemCount recomputes the summed quantity from the item list.
func (c *Cart) ItemCount() int {
	var count int
	for _, it := range c.Items {
		count += it.Quantity
	}
	return count
}
