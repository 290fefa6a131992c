// Package radiusx adapts layeh.com/radius packets to the decoded request and
// reply attribute map used by the AAA core.
package radiusx

import (
	"crypto/md5"
	"crypto/subtle"
	"errors"
	"net"
	"strings"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/rfc2869"

	"github.com/mohit83k/radius-aaa/internal/model"
)

// ErrMalformed marks a request that cannot be processed and must be dropped.
var ErrMalformed = errors.New("malformed request")

// Request is a decoded RADIUS request together with the NAS that sent it.
type Request struct {
	Packet *radius.Packet
	NAS    *model.NAS
	Vendor VendorAdapter
	// Bypass skips the password check, e.g. for MAC authentication.
	Bypass bool

	nasAddr  string
	userName string
	domain   string
}

// Decode wraps p, which was received from nas.
func Decode(p *radius.Packet, nas *model.NAS, vendor VendorAdapter) *Request {
	r := &Request{Packet: p, NAS: nas, Vendor: vendor, nasAddr: nas.Addr}
	if ip := rfc2865.NASIPAddress_Get(p); ip != nil && !ip.IsUnspecified() {
		r.nasAddr = ip.String()
	}
	r.userName, r.domain = splitUserName(rfc2865.UserName_GetString(p))
	return r
}

func splitUserName(s string) (user, domain string) {
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// UserName is the account number, without any @domain suffix.
func (r *Request) UserName() string { return r.userName }

// Domain is the realm after '@' in User-Name, if any.
func (r *Request) Domain() string { return r.domain }

// NasAddr is NAS-IP-Address when present, otherwise the source address.
func (r *Request) NasAddr() string { return r.nasAddr }

// MacAddr is the subscriber MAC as normalised by the vendor adapter.
func (r *Request) MacAddr() string { return r.Vendor.MacAddr(r.Packet) }

// VLANIDs returns the inner and outer VLAN ids; zero when absent.
func (r *Request) VLANIDs() (int, int) { return r.Vendor.VLANIDs(r.Packet) }

// AcctStatusType returns Acct-Status-Type.
func (r *Request) AcctStatusType() rfc2866.AcctStatusType {
	return rfc2866.AcctStatusType_Get(r.Packet)
}

// SessionKey identifies the accounting session.
func (r *Request) SessionKey() model.SessionKey {
	return model.SessionKey{NasAddr: r.nasAddr, SessionID: rfc2866.AcctSessionID_GetString(r.Packet)}
}

// SessionTime returns Acct-Session-Time in seconds.
func (r *Request) SessionTime() int64 {
	return int64(rfc2866.AcctSessionTime_Get(r.Packet))
}

// InputTotal returns input octets including gigawords.
func (r *Request) InputTotal() int64 {
	return int64(rfc2869.AcctInputGigawords_Get(r.Packet))<<32 | int64(rfc2866.AcctInputOctets_Get(r.Packet))
}

// OutputTotal returns output octets including gigawords.
func (r *Request) OutputTotal() int64 {
	return int64(rfc2869.AcctOutputGigawords_Get(r.Packet))<<32 | int64(rfc2866.AcctOutputOctets_Get(r.Packet))
}

// FramedIP returns Framed-IP-Address, or "" when absent.
func (r *Request) FramedIP() string {
	if ip := rfc2865.FramedIPAddress_Get(r.Packet); ip != nil {
		return ip.String()
	}
	return ""
}

// TerminateCause returns Acct-Terminate-Cause.
func (r *Request) TerminateCause() uint32 {
	return uint32(rfc2866.AcctTerminateCause_Get(r.Packet))
}

// IsValidPassword checks a PAP or CHAP password against the cleartext
// password.
func (r *Request) IsValidPassword(password string) bool {
	if chap, err := rfc2865.CHAPPassword_Lookup(r.Packet); err == nil {
		return checkCHAP(chap, r.chapChallenge(), password)
	}
	got, err := rfc2865.UserPassword_LookupString(r.Packet)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(password)) == 1
}

func (r *Request) chapChallenge() []byte {
	if c, err := rfc2865.CHAPChallenge_Lookup(r.Packet); err == nil {
		return c
	}
	return r.Packet.Authenticator[:]
}

// checkCHAP verifies an RFC 1994 response: MD5(id || password || challenge).
func checkCHAP(chap, challenge []byte, password string) bool {
	if len(chap) != 17 {
		return false
	}
	h := md5.New()
	h.Write(chap[:1])
	h.Write([]byte(password))
	h.Write(challenge)
	return subtle.ConstantTimeCompare(h.Sum(nil), chap[1:]) == 1
}

// NormalizeMAC formats a MAC address as lower-case colon-separated hex.
// Unparseable input is returned lower-cased as is.
func NormalizeMAC(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if hw, err := net.ParseMAC(s); err == nil {
		return hw.String()
	}
	clean := strings.NewReplacer("-", "", ":", "", ".", "").Replace(s)
	if hw, err := net.ParseMAC(withColons(clean)); err == nil {
		return hw.String()
	}
	return strings.ToLower(s)
}

func withColons(hex string) string {
	if len(hex) != 12 {
		return hex
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String()
}
