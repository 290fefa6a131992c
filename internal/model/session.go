package model

import "time"

// SessionKey identifies an online session.
type SessionKey struct {
	NasAddr   string `json:"nas_addr"`
	SessionID string `json:"session_id"`
}

func (k SessionKey) String() string {
	return k.NasAddr + ":" + k.SessionID
}

// Checkpoint is the last billed snapshot of a session's counters.
// Octet totals include gigawords.
type Checkpoint struct {
	BilledSeconds int64 `json:"billed_seconds"`
	InputTotal    int64 `json:"input_total"`
	OutputTotal   int64 `json:"output_total"`
}

// Session start sources.
const (
	SourceStart  = "start"
	SourceUpdate = "update"
)

// OnlineSession is the single record of an active session.
type OnlineSession struct {
	SessionKey
	AccountNumber string     `json:"account_number"`
	StartTime     time.Time  `json:"start_time"`
	Checkpoint    Checkpoint `json:"checkpoint"`
	FramedIP      string     `json:"framed_ip"`
	MACAddr       string     `json:"mac_addr"`
	StartSource   string     `json:"start_source"`
}

// BillingRecord is an immutable ledger entry written per Update and Stop.
type BillingRecord struct {
	ID            string     `json:"id"`
	Key           SessionKey `json:"key"`
	AccountNumber string     `json:"account_number"`
	Policy        Policy     `json:"policy"`
	SecondsDelta  int64      `json:"seconds_delta"`
	InputKBDelta  int64      `json:"input_kb_delta"`
	OutputKBDelta int64      `json:"output_kb_delta"`
	Fee           int64      `json:"fee"`
	Balance       int64      `json:"balance"`
	TimeLength    int64      `json:"time_length"`
	FlowLength    int64      `json:"flow_length"`
	Clamped       bool       `json:"clamped"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Ticket stop sources.
const (
	StopSourceStop   = "stop"
	StopSourceNasOn  = "nas-on"
	StopSourceNasOff = "nas-off"
)

// Ticket is an immutable summary of a closed session.
type Ticket struct {
	ID             string     `json:"id"`
	Key            SessionKey `json:"key"`
	AccountNumber  string     `json:"account_number"`
	StartTime      time.Time  `json:"start_time"`
	StopTime       time.Time  `json:"stop_time"`
	SessionTime    int64      `json:"session_time"`
	InputTotal     int64      `json:"input_total"`
	OutputTotal    int64      `json:"output_total"`
	FramedIP       string     `json:"framed_ip"`
	MACAddr        string     `json:"mac_addr"`
	TerminateCause uint32     `json:"terminate_cause"`
	StopSource     string     `json:"stop_source"`
	Reconstructed  bool       `json:"reconstructed"`
}
