package disconnect

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
	"github.com/mohit83k/radius-aaa/internal/stats"
)

type nasTable map[string]*model.NAS

func (n nasTable) NAS(_ context.Context, addr string) (*model.NAS, error) {
	if nas, ok := n[addr]; ok {
		return nas, nil
	}
	return nil, redisclient.ErrNotFound
}

// startNAS runs a fake NAS answering Disconnect-Requests with code.
func startNAS(t *testing.T, secret string, code radius.Code) (int, <-chan *radius.Packet) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	got := make(chan *radius.Packet, 1)
	srv := &radius.PacketServer{
		SecretSource: radius.StaticSecretSource([]byte(secret)),
		Handler: radius.HandlerFunc(func(w radius.ResponseWriter, r *radius.Request) {
			got <- r.Packet
			_ = w.Write(r.Response(code))
		}),
	}
	go func() { _ = srv.Serve(conn) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return conn.LocalAddr().(*net.UDPAddr).Port, got
}

func TestSend_ACK(t *testing.T) {
	port, got := startNAS(t, "nas-secret", radius.CodeDisconnectACK)
	c := NewClient(nasTable{
		"127.0.0.1": {Addr: "127.0.0.1", Secret: "nas-secret", CoAPort: port},
	}, "default", time.Second, logger.Discard(), stats.New())

	s := model.OnlineSession{
		SessionKey:    model.SessionKey{NasAddr: "127.0.0.1", SessionID: "sess-9"},
		AccountNumber: "alice",
		FramedIP:      "10.0.0.9",
	}
	if err := c.Send(context.Background(), s); err != nil {
		t.Fatalf("expected ACK, got %v", err)
	}

	p := <-got
	if p.Code != radius.CodeDisconnectRequest {
		t.Errorf("code %v", p.Code)
	}
	if rfc2865.UserName_GetString(p) != "alice" || rfc2866.AcctSessionID_GetString(p) != "sess-9" {
		t.Errorf("unexpected attributes")
	}
}

func TestSend_NAK(t *testing.T) {
	port, _ := startNAS(t, "nas-secret", radius.CodeDisconnectNAK)
	c := NewClient(nasTable{
		"127.0.0.1": {Addr: "127.0.0.1", Secret: "nas-secret", CoAPort: port},
	}, "default", time.Second, logger.Discard(), nil)

	err := c.Send(context.Background(), model.OnlineSession{SessionKey: model.SessionKey{NasAddr: "127.0.0.1", SessionID: "x"}})
	if !errors.Is(err, ErrNAK) {
		t.Fatalf("expected ErrNAK, got %v", err)
	}
}

func TestDisconnect_UnknownNASUsesDefaults(t *testing.T) {
	c := NewClient(nasTable{}, "default", time.Second, logger.Discard(), nil)
	var addr, secret string
	c.Exchange = func(_ context.Context, p *radius.Packet, a string) (*radius.Packet, error) {
		addr, secret = a, string(p.Secret)
		return p.Response(radius.CodeDisconnectACK), nil
	}

	c.Disconnect(context.Background(), model.OnlineSession{SessionKey: model.SessionKey{NasAddr: "192.0.2.5", SessionID: "s"}}, "test")
	c.Wait()

	if addr != net.JoinHostPort("192.0.2.5", strconv.Itoa(model.DefaultCoAPort)) {
		t.Errorf("addr = %s", addr)
	}
	if secret != "default" {
		t.Errorf("secret = %s", secret)
	}
}
