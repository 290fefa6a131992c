package model

// Policy is the billing policy kind of a product.
type Policy string

const (
	PolicyPrepaidMonthly Policy = "prepaid_monthly"
	PolicyPrepaidTime    Policy = "prepaid_time"
	PolicyBuyoutMonthly  Policy = "buyout_monthly"
	PolicyBuyoutTime     Policy = "buyout_time"
	PolicyPrepaidFlow    Policy = "prepaid_flow"
	PolicyBuyoutFlow     Policy = "buyout_flow"
	PolicyFreeform       Policy = "freeform"
)

// IsMonthly reports whether access under p is governed by the expire date.
func (p Policy) IsMonthly() bool {
	return p == PolicyPrepaidMonthly || p == PolicyBuyoutMonthly
}

// GracePolicy is the reduced service granted to expired or exhausted accounts.
type GracePolicy struct {
	UpRate   int64 `json:"up_rate"`
	DownRate int64 `json:"down_rate"`
	Timeout  int64 `json:"timeout"`
}

// Product is a billing policy template.
//
// Price is per hour for PrepaidTime, per MB for PrepaidFlow and the purchase
// price otherwise. Rates are in kbps.
type Product struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Policy        Policy       `json:"policy"`
	Price         int64        `json:"price"`
	UpRate        int64        `json:"up_rate"`
	DownRate      int64        `json:"down_rate"`
	BuyoutMonths  int          `json:"buyout_months"`
	BuyoutSeconds int64        `json:"buyout_seconds"`
	BuyoutFlowKB  int64        `json:"buyout_flow_kb"`
	Grace         *GracePolicy `json:"grace,omitempty"`
	ReplyAttrs    []ReplyAttr  `json:"reply_attrs,omitempty"`
}
