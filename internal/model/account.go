package model

import "time"

// AccountStatus is the lifecycle state of a subscriber account.
type AccountStatus string

const (
	StatusPreAuth   AccountStatus = "preauth"
	StatusNormal    AccountStatus = "normal"
	StatusPaused    AccountStatus = "paused"
	StatusCancelled AccountStatus = "cancelled"
	StatusExpired   AccountStatus = "expired"
)

// ReplyAttr is an extra attribute returned in Access-Accept.
type ReplyAttr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Account represents a subscriber's access identity and billing balances.
type Account struct {
	Number      string        `json:"number"`
	Password    string        `json:"password"`
	Status      AccountStatus `json:"status"`
	ProductID   string        `json:"product_id"`
	Balance     int64         `json:"balance"`
	TimeLength  int64         `json:"time_length"`
	FlowLength  int64         `json:"flow_length"`
	ExpireDate  time.Time     `json:"expire_date"`
	OnlineLimit int           `json:"online_limit"`
	BindMAC     bool          `json:"bind_mac"`
	BindVLAN    bool          `json:"bind_vlan"`
	MACAddr     string        `json:"mac_addr"`
	VLANID1     int           `json:"vlan_id1"`
	VLANID2     int           `json:"vlan_id2"`
	StaticIP    string        `json:"static_ip"`
	ReplyAttrs  []ReplyAttr   `json:"reply_attrs,omitempty"`
}

// ExpireDeadline returns midnight at the end of the expire date, or the zero
// time when the account never expires.
func (a *Account) ExpireDeadline() time.Time {
	if a.ExpireDate.IsZero() {
		return time.Time{}
	}
	y, m, d := a.ExpireDate.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, a.ExpireDate.Location())
}

// IsExpiredAt reports whether the account is expired at t, either by status or
// because its expire date has passed.
func (a *Account) IsExpiredAt(t time.Time) bool {
	if a.Status == StatusExpired {
		return true
	}
	deadline := a.ExpireDeadline()
	return !deadline.IsZero() && !t.Before(deadline)
}
