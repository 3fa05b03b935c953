package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusConfirmed        OrderStatus = "confirmed"
	StatusReadyForDelivery OrderStatus = "readyForDelivery"
	StatusDelivered        OrderStatus = "delivered"
	StatusCancelled        OrderStatus = "cancelled"
)

type Order struct {
	ID                 string                       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID             string                       `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Items              []OrderItem                  `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	DeliveryAddresses  map[MealTime]DeliveryAddress `gorm:"serializer:json;type:text" json:"delivery_addresses"`
	Subtotal           decimal.Decimal              `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DeliveryCost       decimal.Decimal              `gorm:"type:decimal(12,2);not null" json:"delivery_cost"`
	PlatformFee        decimal.Decimal              `gorm:"type:decimal(12,2);not null" json:"platform_fee"`
	GST                decimal.Decimal              `gorm:"column:gst;type:decimal(12,2);not null" json:"gst"`
	TotalAmount        decimal.Decimal              `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Currency           string                       `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Status             OrderStatus                  `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod      string                       `gorm:"type:varchar(30)" json:"payment_method"`
	PaymentSessionID   string                       `gorm:"type:varchar(255)" json:"payment_session_id"`
	PaymentRedirectURL string                       `gorm:"type:varchar(255)" json:"payment_redirect_url,omitempty"`
	PaymentMessage     string                       `gorm:"type:varchar(255)" json:"payment_message,omitempty"`
	PaymentVerifiedAt  *time.Time                   `json:"payment_verified_at,omitempty"`
	CreatedAt          time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time                    `gorm:"not null" json:"updated_at"`
}

// Item finds an item by id.
func (o *Order) Item(id string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Categories lists the meal categories present across the order's items.
func (o *Order) Categories() []MealTime {
	sel := make([][]MealTime, 0, len(o.Items))
	for _, it := range o.Items {
		sel = append(sel, it.MealTimes)
	}
	return Categories(sel...)
}

// OrderItem is a cart line frozen at checkout time.
type OrderItem struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID       string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Menu          Menu            `gorm:"serializer:json;type:text" json:"menu"`
	Plan          Plan            `gorm:"serializer:json;type:text" json:"plan"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	MealTimes     []MealTime      `gorm:"serializer:json;type:text" json:"meal_times"`
	StartDate     time.Time       `gorm:"not null" json:"start_date"`
	EndDate       time.Time       `gorm:"not null" json:"end_date"`
	LineTotal     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
	PersonDetails []PersonDetail  `gorm:"serializer:json;type:text" json:"person_details,omitempty"`
	SkippedDates  []time.Time     `gorm:"serializer:json;type:text" json:"skipped_dates"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// Clone copies the slices so the result shares no backing arrays with it.
func (it OrderItem) Clone() OrderItem {
	cp := it
	cp.Menu = it.Menu.Snapshot()
	cp.MealTimes = append([]MealTime(nil), it.MealTimes...)
	cp.SkippedDates = append([]time.Time(nil), it.SkippedDates...)
	if it.PersonDetails != nil {
		cp.PersonDetails = append([]PersonDetail(nil), it.PersonDetails...)
	}
	return cp
}

// OrderPayload is what checkout submits to the Order API.
type OrderPayload struct {
	UserID            string                       `json:"user_id"`
	Items             []OrderItem                  `json:"items"`
	DeliveryAddresses map[MealTime]DeliveryAddress `json:"delivery_addresses"`
	PaymentMethod     string                       `json:"payment_method"`
	Subtotal          decimal.Decimal              `json:"subtotal"`
	DeliveryCost      decimal.Decimal              `json:"delivery_cost"`
	PlatformFee       decimal.Decimal              `json:"platform_fee"`
	GST               decimal.Decimal              `json:"gst"`
	TotalAmount       decimal.Decimal              `json:"total_amount"`
	Currency          string                       `json:"currency"`
}

type PatchKind int

const (
	PatchInvalid PatchKind = iota
	PatchStatus
	PatchAddresses
	PatchSkip
)

// OrderPatch carries exactly one of: a status, a new address map, or a skip.
type OrderPatch struct {
	Status            *OrderStatus                 `json:"status,omitempty"`
	DeliveryAddresses map[MealTime]DeliveryAddress `json:"delivery_addresses,omitempty"`
	ItemID            string                       `json:"item_id,omitempty"`
	SkippedDate       *time.Time                   `json:"skipped_date,omitempty"`
	NewEndDate        *time.Time                   `json:"new_end_date,omitempty"`
}

func (p OrderPatch) Kind() PatchKind {
	kinds := 0
	kind := PatchInvalid
	if p.Status != nil {
		kinds++
		kind = PatchStatus
	}
	if p.DeliveryAddresses != nil {
		kinds++
		kind = PatchAddresses
	}
	if p.ItemID != "" || p.SkippedDate != nil || p.NewEndDate != nil {
		kinds++
		kind = PatchSkip
		if p.ItemID == "" || p.SkippedDate == nil || p.NewEndDate == nil {
			return PatchInvalid
		}
	}
	if kinds != 1 {
		return PatchInvalid
	}
	return kind
}

type CreateOrderResult struct {
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	RedirectURL      string `json:"redirect_url,omitempty"`
	Order            Order  `json:"order"`
}

type VerifyPaymentResult struct {
	Order   Order  `json:"order"`
	Message string `json:"message"`
}
