package redisclient

import (
	"fmt"

	"github.com/mohit83k/radius-aaa/internal/model"
)

const (
	keyAccount         = "radius:account:"
	keyProduct         = "radius:product:"
	keyNAS             = "radius:nas:"
	keyOnline          = "radius:online:"
	keyOnlineByAccount = "radius:online:by-account:"
	keyOnlineByNas     = "radius:online:by-nas:"
	keyBilling         = "radius:billing:"
	keyTicket          = "radius:ticket:"
	keyStopped         = "radius:acct:stopped:"
	keyInterim         = "radius:acct:interim:"
)

func onlineKey(k model.SessionKey) string {
	return keyOnline + k.NasAddr + "|" + k.SessionID
}

func stoppedKey(k model.SessionKey) string {
	return keyStopped + k.NasAddr + "|" + k.SessionID
}

func interimKey(k model.SessionKey, c model.Checkpoint) string {
	return fmt.Sprintf("%s%s|%s|%d:%d:%d", keyInterim, k.NasAddr, k.SessionID, c.BilledSeconds, c.InputTotal, c.OutputTotal)
}

// indexMember encodes a session key as a member of the by-account index.
func indexMember(k model.SessionKey) string {
	return k.NasAddr + "|" + k.SessionID
}
