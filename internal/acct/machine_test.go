package acct

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"

	"github.com/mohit83k/radius-aaa/internal/cache"
	"github.com/mohit83k/radius-aaa/internal/disconnect/mocks"
	"github.com/mohit83k/radius-aaa/internal/events"
	"github.com/mohit83k/radius-aaa/internal/logger"
	"github.com/mohit83k/radius-aaa/internal/lookup"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/radiusx"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
	"github.com/mohit83k/radius-aaa/internal/registry"
)

var (
	testNAS = &model.NAS{Addr: "192.0.2.1", Secret: "testing123"}
	testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
)

type fakeCatalog struct {
	accounts map[string]*model.Account
	products map[string]*model.Product
}

func (f *fakeCatalog) Account(_ context.Context, number string) (*model.Account, error) {
	acc, ok := f.accounts[number]
	if !ok {
		return nil, redisclient.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeCatalog) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	return f.Account(ctx, number)
}

func (f *fakeCatalog) Product(_ context.Context, id string) (*model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, redisclient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalog) SaveAccount(_ context.Context, acc *model.Account) error {
	cp := *acc
	f.accounts[acc.Number] = &cp
	return nil
}

type fixture struct {
	machine  *Machine
	catalog  *fakeCatalog
	store    *redisclient.RedisStore
	registry *registry.Registry
	disc     *mocks.MockDisconnector
	ids      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisclient.NewRedisStore(redisclient.NewClient(mr.Addr(), "", 0))

	f := &fixture{
		catalog: &fakeCatalog{
			accounts: map[string]*model.Account{},
			products: map[string]*model.Product{
				"hourly":  {ID: "hourly", Policy: model.PolicyPrepaidTime, Price: 200},
				"flow":    {ID: "flow", Policy: model.PolicyBuyoutFlow},
				"monthly": {ID: "monthly", Policy: model.PolicyPrepaidMonthly, BuyoutMonths: 1},
			},
		},
		store:    store,
		registry: registry.New(store),
		disc:     mocks.NewMockDisconnector(gomock.NewController(t)),
	}
	f.machine = NewMachine(f.catalog, f.catalog, f.registry, store, f.disc, logger.Discard(), time.Hour)
	f.machine.SetClock(func() time.Time { return testNow })
	f.machine.newID = func() string {
		f.ids++
		return "id-" + strconv.Itoa(f.ids)
	}
	return f
}

type acctRequest struct {
	status      rfc2866.AcctStatusType
	user        string
	session     string
	sessionTime uint32
	input       uint32
	output      uint32
}

func (r acctRequest) decode() *radiusx.Request {
	p := radius.New(radius.CodeAccountingRequest, []byte(testNAS.Secret))
	rfc2865.UserName_SetString(p, r.user)
	rfc2866.AcctStatusType_Set(p, r.status)
	rfc2866.AcctSessionID_SetString(p, r.session)
	rfc2866.AcctSessionTime_Set(p, rfc2866.AcctSessionTime(r.sessionTime))
	rfc2866.AcctInputOctets_Set(p, rfc2866.AcctInputOctets(r.input))
	rfc2866.AcctOutputOctets_Set(p, rfc2866.AcctOutputOctets(r.output))
	return radiusx.Decode(p, testNAS, radiusx.Standard{})
}

func (f *fixture) handle(t *testing.T, r acctRequest) {
	t.Helper()
	require.NoError(t, f.machine.Handle(context.Background(), r.decode()))
}

func start(user, session string) acctRequest {
	return acctRequest{status: rfc2866.AcctStatusType_Value_Start, user: user, session: session}
}

func update(user, session string, secs, out uint32) acctRequest {
	return acctRequest{status: rfc2866.AcctStatusType_Value_InterimUpdate, user: user, session: session, sessionTime: secs, output: out}
}

func stop(user, session string, secs uint32) acctRequest {
	return acctRequest{status: rfc2866.AcctStatusType_Value_Stop, user: user, session: session, sessionTime: secs}
}

func (f *fixture) online(t *testing.T, session string) *model.OnlineSession {
	t.Helper()
	s, err := f.registry.Get(context.Background(), model.SessionKey{NasAddr: testNAS.Addr, SessionID: session})
	require.NoError(t, err)
	return s
}

func TestStart_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500, Status: model.StatusNormal}

	f.handle(t, start("alice", "s1"))
	first := f.online(t, "s1")
	require.NotNil(t, first)

	f.machine.SetClock(func() time.Time { return testNow.Add(time.Minute) })
	f.handle(t, start("alice", "s1"))

	again := f.online(t, "s1")
	require.NotNil(t, again)
	assert.True(t, first.StartTime.Equal(again.StartTime))
	n, err := f.registry.CountByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStart_UnknownAccountIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.handle(t, start("ghost", "s1"))
	assert.Nil(t, f.online(t, "s1"))
}

func TestStart_ActivatesPreAuthAccount(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "monthly", Status: model.StatusPreAuth}

	f.handle(t, start("alice", "s1"))

	acc := f.catalog.accounts["alice"]
	assert.Equal(t, model.StatusNormal, acc.Status)
	assert.True(t, acc.ExpireDate.Equal(testNow.AddDate(0, 1, 0)))
}

func TestStop_WithoutStartWritesOneTicket(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500}

	f.handle(t, stop("alice", "s1", 600))
	f.handle(t, stop("alice", "s1", 600))

	tickets, err := f.store.ListTickets(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.True(t, tickets[0].Reconstructed)
	assert.Equal(t, int64(600), tickets[0].SessionTime)
	assert.True(t, tickets[0].StartTime.Equal(testNow.Add(-10*time.Minute)))

	recs, err := f.store.ListBilling(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStart_AfterStopIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500}

	f.handle(t, stop("alice", "s1", 600))
	f.handle(t, start("alice", "s1"))

	assert.Nil(t, f.online(t, "s1"))
	n, err := f.registry.CountByAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdate_AfterStopIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500}

	f.handle(t, start("alice", "s1"))
	f.handle(t, stop("alice", "s1", 600))
	f.handle(t, update("alice", "s1", 300, 0))

	assert.Nil(t, f.online(t, "s1"))
	recs, err := f.store.ListBilling(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUpdate_AfterStopWithoutStartIsNotAdopted(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500}

	f.handle(t, stop("alice", "s2", 600))
	f.handle(t, update("alice", "s2", 300, 0))

	assert.Nil(t, f.online(t, "s2"))
}

func TestUpdate_RetransmitBillsOnce(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 1000}

	f.handle(t, start("alice", "s1"))
	f.handle(t, update("alice", "s1", 600, 0))
	f.handle(t, update("alice", "s1", 600, 0))
	f.handle(t, stop("alice", "s1", 1200))

	recs, err := f.store.ListBilling(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1000-2*34), f.catalog.accounts["alice"].Balance)
}

func TestUpdate_BillsFromStoreNotFromStaleCache(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisclient.NewRedisStore(redisclient.NewClient(mr.Addr(), "", 0))
	reg := registry.New(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProduct(ctx, &model.Product{ID: "hourly", Policy: model.PolicyPrepaidTime, Price: 200}))
	require.NoError(t, store.SaveAccount(ctx, &model.Account{Number: "alice", ProductID: "hourly", Balance: 400}))

	// Two servers share the store; invalidations between them are lost.
	process := func() (*Machine, *lookup.Lookup) {
		c, err := cache.New(16)
		require.NoError(t, err)
		catalog := lookup.New(store, c, time.Hour, events.Discard)
		m := NewMachine(catalog, store, reg, store, mocks.NewMockDisconnector(gomock.NewController(t)), logger.Discard(), time.Hour)
		m.SetClock(func() time.Time { return testNow })
		return m, catalog
	}
	a, _ := process()
	b, catalogB := process()

	cached, err := catalogB.Account(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(400), cached.Balance)

	require.NoError(t, a.Handle(ctx, start("alice", "s1").decode()))
	require.NoError(t, a.Handle(ctx, update("alice", "s1", 1800, 0).decode()))
	require.NoError(t, b.Handle(ctx, update("alice", "s1", 3600, 0).decode()))

	acc, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), acc.Balance)
}

func TestLifecycle_BillsEveryUpdateAndStop(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 10000}
	ctx := context.Background()

	f.handle(t, start("alice", "s1"))
	for i := uint32(1); i <= 3; i++ {
		f.handle(t, update("alice", "s1", i*600, 0))
	}
	f.handle(t, stop("alice", "s1", 2400))

	recs, err := f.store.ListBilling(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	var total int64
	for _, r := range recs {
		assert.Equal(t, int64(600), r.SecondsDelta)
		total += r.Fee
	}
	// 40 minutes at 200/hour, each 10 minute slice rounded up to 34.
	assert.Equal(t, int64(4*34), total)
	assert.Equal(t, int64(10000-total), f.catalog.accounts["alice"].Balance)

	tickets, err := f.store.ListTickets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.False(t, tickets[0].Reconstructed)
	assert.Equal(t, model.StopSourceStop, tickets[0].StopSource)
	assert.Nil(t, f.online(t, "s1"))
}

func TestUpdate_PrepaidTimeExhaustion(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 200}
	f.handle(t, start("alice", "s1"))

	// Half an hour at 200/hour costs 100.
	f.handle(t, update("alice", "s1", 1800, 0))
	assert.Equal(t, int64(100), f.catalog.accounts["alice"].Balance)

	f.disc.EXPECT().Disconnect(gomock.Any(), gomock.Any(), "exhausted").
		Do(func(_ context.Context, s model.OnlineSession, _ string) {
			assert.Equal(t, "s1", s.SessionID)
		}).
		Times(1)
	f.handle(t, update("alice", "s1", 3600, 0))
	assert.Equal(t, int64(0), f.catalog.accounts["alice"].Balance)

	s := f.online(t, "s1")
	require.NotNil(t, s)
	assert.Equal(t, int64(3600), s.Checkpoint.BilledSeconds)
}

func TestUpdate_BuyoutFlowNeverNegative(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "flow", FlowLength: 100}
	f.handle(t, start("alice", "s1"))

	f.disc.EXPECT().Disconnect(gomock.Any(), gomock.Any(), "exhausted").Times(1)
	f.handle(t, update("alice", "s1", 60, 150*1024))

	assert.Equal(t, int64(0), f.catalog.accounts["alice"].FlowLength)
	recs, err := f.store.ListBilling(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Clamped)
	assert.Equal(t, int64(150), recs[0].OutputKBDelta)
}

func TestUpdate_WithoutStartAdoptsSession(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 500}

	f.handle(t, update("alice", "s1", 900, 2048))

	s := f.online(t, "s1")
	require.NotNil(t, s)
	assert.Equal(t, model.SourceUpdate, s.StartSource)
	assert.True(t, s.StartTime.Equal(testNow.Add(-15*time.Minute)))
	assert.Equal(t, int64(900), s.Checkpoint.BilledSeconds)
	assert.Equal(t, int64(2048), s.Checkpoint.OutputTotal)
	assert.Equal(t, int64(500), f.catalog.accounts["alice"].Balance)

	recs, err := f.store.ListBilling(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdate_CounterResetRestartsCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 1000}
	f.handle(t, start("alice", "s1"))
	f.handle(t, update("alice", "s1", 1800, 0))
	balance := f.catalog.accounts["alice"].Balance

	f.handle(t, update("alice", "s1", 60, 0))

	assert.Equal(t, balance, f.catalog.accounts["alice"].Balance)
	s := f.online(t, "s1")
	require.NotNil(t, s)
	assert.Equal(t, int64(60), s.Checkpoint.BilledSeconds)
}

func TestNasReload_ClosesAllSessionsOfNas(t *testing.T) {
	f := newFixture(t)
	f.catalog.accounts["alice"] = &model.Account{Number: "alice", ProductID: "hourly", Balance: 1000}
	f.catalog.accounts["bob"] = &model.Account{Number: "bob", ProductID: "hourly", Balance: 1000}
	ctx := context.Background()

	f.handle(t, start("alice", "s1"))
	f.handle(t, start("bob", "s2"))
	other := model.OnlineSession{
		SessionKey:    model.SessionKey{NasAddr: "198.51.100.9", SessionID: "s3"},
		AccountNumber: "bob",
		StartTime:     testNow,
	}
	_, err := f.registry.Insert(ctx, other)
	require.NoError(t, err)

	f.machine.SetClock(func() time.Time { return testNow.Add(time.Hour) })
	f.handle(t, acctRequest{status: rfc2866.AcctStatusType_Value_AccountingOn})

	assert.Nil(t, f.online(t, "s1"))
	assert.Nil(t, f.online(t, "s2"))
	n, err := f.registry.CountByAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tickets, err := f.store.ListTickets(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, model.StopSourceNasOn, tickets[0].StopSource)
	assert.Equal(t, int64(3600), tickets[0].SessionTime)

	recs, err := f.store.ListBilling(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHandle_StoreErrorIsReturned(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisclient.NewRedisStore(redisclient.NewClient(mr.Addr(), "", 0))
	f := newFixture(t)
	f.machine.ledger = store
	mr.Close()

	err := f.machine.Handle(context.Background(), stop("alice", "s1", 10).decode())
	assert.ErrorIs(t, err, redisclient.ErrStoreUnavailable)
}
