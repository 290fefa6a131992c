package radiusx

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2869"
)

// Reply attribute names understood by Apply.
const (
	AttrSessionTimeout  = "Session-Timeout"
	AttrIdleTimeout     = "Idle-Timeout"
	AttrInterimInterval = "Acct-Interim-Interval"
	AttrFramedIP        = "Framed-IP-Address"
	AttrFramedPool      = "Framed-Pool"
	AttrFilterID        = "Filter-Id"
	AttrClass           = "Class"
	AttrReplyMessage    = "Reply-Message"
	AttrUpRate          = "Input-Rate-Limit"
	AttrDownRate        = "Output-Rate-Limit"
)

// Attrs is the typed reply attribute map. Integer attributes accept any Go
// integer or a decimal string.
type Attrs map[string]any

// Apply writes attrs into the reply p. Rate limits are emitted through the
// vendor adapter. Unknown or invalid attributes are skipped and reported in
// the returned error.
func Apply(p *radius.Packet, attrs Attrs, vendor VendorAdapter) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var bad []string
	for _, name := range names {
		if name == AttrUpRate || name == AttrDownRate {
			continue
		}
		if err := applyOne(p, name, attrs[name]); err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", name, err))
		}
	}

	up, upErr := toInt64(attrs[AttrUpRate])
	down, downErr := toInt64(attrs[AttrDownRate])
	if upErr == nil || downErr == nil {
		if err := vendor.SetRateLimit(p, up, down); err != nil {
			bad = append(bad, fmt.Sprintf("rate limit: %v", err))
		}
	}

	if len(bad) > 0 {
		return fmt.Errorf("reply attributes skipped: %v", bad)
	}
	return nil
}

func applyOne(p *radius.Packet, name string, v any) error {
	switch name {
	case AttrSessionTimeout, AttrIdleTimeout, AttrInterimInterval:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < 0 || n > int64(^uint32(0)) {
			return fmt.Errorf("out of range: %d", n)
		}
		switch name {
		case AttrSessionTimeout:
			return rfc2865.SessionTimeout_Set(p, rfc2865.SessionTimeout(n))
		case AttrIdleTimeout:
			return rfc2865.IdleTimeout_Set(p, rfc2865.IdleTimeout(n))
		default:
			return rfc2869.AcctInterimInterval_Set(p, rfc2869.AcctInterimInterval(n))
		}
	case AttrFramedIP:
		ip := net.ParseIP(fmt.Sprint(v))
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("invalid IPv4 address %v", v)
		}
		return rfc2865.FramedIPAddress_Set(p, ip)
	case AttrFramedPool:
		return rfc2869.FramedPool_SetString(p, fmt.Sprint(v))
	case AttrFilterID:
		return rfc2865.FilterID_SetString(p, fmt.Sprint(v))
	case AttrClass:
		return rfc2865.Class_SetString(p, fmt.Sprint(v))
	case AttrReplyMessage:
		return rfc2865.ReplyMessage_SetString(p, fmt.Sprint(v))
	default:
		return fmt.Errorf("unsupported attribute")
	}
}

var errAbsent = fmt.Errorf("absent")

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, errAbsent
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer type %T", v)
	}
}
