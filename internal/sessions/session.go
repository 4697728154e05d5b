package sessions

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PersonalInfo is the contact block collected on the first checkout step.
type PersonalInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins first and last name.
func (p PersonalInfo) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// ShippingInfo is the delivery block collected on the second checkout step.
type ShippingInfo struct {
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
	ShippingMethod string `json:"shippingMethod"`
}

// SingleLine renders the address the way order records store it.
func (s ShippingInfo) SingleLine() string {
	return s.Address + ", " + s.City + ", " + s.State + " " + s.Zip
}

// CheckoutSession is the in-progress checkout stored per browser session.
type CheckoutSession struct {
	SessionID        string               `json:"sessionId"`
	CheckoutID       string               `json:"checkoutId,omitempty"`
	Step             enums.CheckoutStep   `json:"step"`
	PersonalInfo     *PersonalInfo        `json:"personalInfo,omitempty"`
	ShippingInfo     *ShippingInfo        `json:"shippingInfo,omitempty"`
	PaymentMethod    *enums.PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentIntentID  string               `json:"paymentIntentId,omitempty"`
	OrderID          string               `json:"orderId,omitempty"`
	PaymentReference string               `json:"paymentReference,omitempty"`
	CartCleared      bool                 `json:"cartCleared"`
	TrackingRecordID string               `json:"trackingRecordId,omitempty"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// HasCheckout reports whether the session has started a checkout.
func (s *CheckoutSession) HasCheckout() bool {
	return s != nil && s.CheckoutID != ""
}

// Clone returns a deep copy so mutations never alias the stored value.
func (s *CheckoutSession) Clone() *CheckoutSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.PersonalInfo != nil {
		info := *s.PersonalInfo
		out.PersonalInfo = &info
	}
	if s.ShippingInfo != nil {
		info := *s.ShippingInfo
		out.ShippingInfo = &info
	}
	if s.PaymentMethod != nil {
		method := *s.PaymentMethod
		out.PaymentMethod = &method
	}
	return &out
}
