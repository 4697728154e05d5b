package enums

import "fmt"

// CheckoutStep is the stage a shopper's checkout has reached.
type CheckoutStep string

const (
	CheckoutStepStarted           CheckoutStep = "started"
	CheckoutStepPersonalInfo      CheckoutStep = "personal_info"
	CheckoutStepShippingInfo      CheckoutStep = "shipping_info"
	CheckoutStepPaymentSelection  CheckoutStep = "payment_selection"
	CheckoutStepPaymentProcessing CheckoutStep = "payment_processing"
	CheckoutStepCompleted         CheckoutStep = "completed"
	CheckoutStepAbandoned         CheckoutStep = "abandoned"
)

var validCheckoutSteps = []CheckoutStep{
	CheckoutStepStarted,
	CheckoutStepPersonalInfo,
	CheckoutStepShippingInfo,
	CheckoutStepPaymentSelection,
	CheckoutStepPaymentProcessing,
	CheckoutStepCompleted,
	CheckoutStepAbandoned,
}

// String implements fmt.Stringer.
func (s CheckoutStep) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutStep.
func (s CheckoutStep) IsValid() bool {
	for _, candidate := range validCheckoutSteps {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s CheckoutStep) IsTerminal() bool {
	return s == CheckoutStepCompleted || s == CheckoutStepAbandoned
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	for _, candidate := range validCheckoutSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout step %q", value)
}
