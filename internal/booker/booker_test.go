package booker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/browser/browsertest"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/config"
	"github.com/example/slotbook/internal/lhweb"
	"github.com/example/slotbook/internal/lock"
	"github.com/example/slotbook/internal/logger"
	"github.com/stretchr/testify/require"
)

const storage = `{"access_token":"tok","profile":{"dimension_person_pk":42}}`

// site builds a browser that can walk the whole flow: login page, session
// storage, basket summary and payment forms all resolve.
func site() *browsertest.Driver {
	d := browsertest.NewDriver()
	d.Add(browser.Tag("button"), browsertest.NewElement("Accept"))
	for _, id := range []string{
		"xn-Username", "xn-Password", "login",
		"form-submit",
		"oCustomer-sCountryCode", "oCustomer-sAddressLine1", "oCustomer-sTown", "oCustomer-sPostCode",
		"oCustomer-sCardholderName", "oCustomer-sTelephoneNumber",
		"oCard-sCardHolderName", "oCard-sCardNumber", "oCard-sCVV", "oCard-sCardEndDateMonth", "oCard-sCardEndDateYear",
	} {
		d.Add(browser.ID(id), browsertest.NewElement())
	}
	for _, xp := range []string{
		`//button[text()="Pay Now"]`,
		`//span[@data-bind="text: Description"]`,
		`//span[@data-bind="text: BookingFormattedDateTime"]`,
		`//span[@data-bind="text: Location"]`,
		`//span[@data-bind="text: SubLocationName"]`,
		`//a[text()="Enter your address manually"]`,
		`//span[text()="Visa"]`,
	} {
		d.Add(browser.XPath(xp), browsertest.NewElement("x"))
	}
	d.EvalFunc = func(js string) (any, error) {
		if strings.Contains(js, "localStorage") {
			return storage, nil
		}
		return "", nil
	}
	return d
}

type fakeDrivers struct {
	mu      sync.Mutex
	drivers []*browsertest.Driver
	next    func() *browsertest.Driver
	err     error
}

func (f *fakeDrivers) New(ctx context.Context) (browser.Driver, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := site()
	if f.next != nil {
		d = f.next()
	}
	f.mu.Lock()
	f.drivers = append(f.drivers, d)
	f.mu.Unlock()
	return d, nil
}

func api(t *testing.T) *lhweb.Client {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Sites/1/Timetables/Bookings", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
{"ActivityCode":"BAD","LocationCode":"EDGE","LocationDescription":"The Edge","ActivityGroupId":"7",
 "ActivityDescription":"Badminton","StartTime":"2024-05-08T17:00:00","EndTime":"2024-05-08T18:00:00",
 "AvailablePlaceLocationDescription":"Court","DisplayName":"Badminton"}]`)
	})
	mux.HandleFunc("GET /Bookings/SubLocationGroups", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"SubLocationGroupId":3,"SubLocationNames":"Court 3","Available":true}]`)
	})
	mux.HandleFunc("POST /Basket", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"basket-1"`)
	})
	mux.HandleFunc("POST /Basket/basket-1/Items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := lhweb.NewClient(logger.Discard())
	c.BaseURL = srv.URL
	return c
}

var (
	now   = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	alice = config.Account{Name: "alice", Username: "alice", Password: "pw", Activity: "Badminton", StartTime: "17:00", CardType: "Visa"}
)

func newSession(t *testing.T, acct config.Account, drivers DriverFactory) (*Session, *clock.Recorder) {
	g := config.Global{DayDelta: 7, RetryCount: 1, DryRun: true, ScreenshotDir: t.TempDir()}
	rec := &clock.Recorder{}
	s := NewSession(g, acct, drivers, logger.Discard())
	s.API = api(t)
	s.Sleep = rec.Sleep
	s.Now = func() time.Time { return now }
	return s, rec
}

func TestSessionDone(t *testing.T) {
	drivers := &fakeDrivers{}
	s, rec := newSession(t, alice, drivers)

	out := s.Run(context.Background())
	require.True(t, out.Success, out.Error)
	require.Equal(t, booking.StateDone, s.State())
	require.Equal(t, booking.StatePaymentFilled, out.State)
	require.Equal(t, "basket-1", out.BasketID)
	require.Equal(t, s.ID, out.ID)
	require.Contains(t, out.Activity, "Badminton")
	require.NotEmpty(t, out.Screenshot)
	require.Equal(t, now, out.StartedAt)

	require.Len(t, drivers.drivers, 1)
	require.Equal(t, 1, drivers.drivers[0].Closed)
	require.Equal(t, []time.Duration{20 * time.Second}, rec.Waits)
}

func TestSessionActivityNotFound(t *testing.T) {
	drivers := &fakeDrivers{}
	acct := alice
	acct.Activity = "Squash"
	s, _ := newSession(t, acct, drivers)

	out := s.Run(context.Background())
	require.False(t, out.Success)
	require.Equal(t, booking.StateFailed, s.State())
	require.Equal(t, booking.StateCredentialsExtracted, out.State)
	require.Equal(t, string(booking.CodeActivityNotFound), out.ErrorCode)
	require.Equal(t, booking.KindExpectedTerminal.String(), out.ErrorKind)
	require.Equal(t, 1, drivers.drivers[0].Closed)
	// failure screenshot taken straight away
	require.Len(t, drivers.drivers[0].Screenshots, 1)
}

func TestSessionSessionNeverReady(t *testing.T) {
	drivers := &fakeDrivers{next: func() *browsertest.Driver {
		d := site()
		d.EvalFunc = func(string) (any, error) { return nil, nil }
		return d
	}}
	s, rec := newSession(t, alice, drivers)

	out := s.Run(context.Background())
	require.False(t, out.Success)
	require.Equal(t, booking.StateAuthenticated, out.State)
	require.Equal(t, string(booking.CodeSessionNotReady), out.ErrorCode)
	require.Equal(t, 5, rec.Count())
	require.Equal(t, 1, drivers.drivers[0].Closed)
}

func TestSessionRecoversPanic(t *testing.T) {
	drivers := &fakeDrivers{next: func() *browsertest.Driver {
		d := site()
		d.EvalFunc = func(string) (any, error) { panic("boom") }
		return d
	}}
	s, _ := newSession(t, alice, drivers)

	var out booking.Outcome
	require.NotPanics(t, func() { out = s.Run(context.Background()) })
	require.False(t, out.Success)
	require.Equal(t, booking.StateFailed, s.State())
	require.Equal(t, string(booking.CodeInternal), out.ErrorCode)
	require.Contains(t, out.Error, "boom")
	require.Equal(t, 1, drivers.drivers[0].Closed)
	require.False(t, out.FinishedAt.IsZero())
}

func TestSessionDriverStartFails(t *testing.T) {
	drivers := &fakeDrivers{err: errors.New("no browser")}
	s, _ := newSession(t, alice, drivers)

	out := s.Run(context.Background())
	require.False(t, out.Success)
	require.Equal(t, booking.StateFailed, s.State())
	require.Equal(t, booking.StateStart, out.State)
	require.Contains(t, out.Error, "no browser")
}

func TestSessionDeadline(t *testing.T) {
	drivers := &fakeDrivers{next: func() *browsertest.Driver {
		d := site()
		d.EvalFunc = func(string) (any, error) { return nil, nil }
		return d
	}}
	s, _ := newSession(t, alice, drivers)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	out := s.Run(ctx)
	require.False(t, out.Success)
	require.Equal(t, booking.KindTimedOut.String(), out.ErrorKind)
	require.Equal(t, 1, drivers.drivers[0].Closed)
}

type memOutcomes struct {
	mu  sync.Mutex
	all []booking.Outcome
}

func (m *memOutcomes) SaveOutcome(ctx context.Context, o *booking.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = append(m.all, *o)
	return nil
}

func TestRunnerRunAll(t *testing.T) {
	bob := alice
	bob.Name = "bob"
	bob.Activity = "Squash"
	carol := alice
	carol.Name = "carol"

	locker := lock.NewLocal()
	held, err := locker.Acquire(context.Background(), lock.Key("carol"), time.Hour)
	require.NoError(t, err)
	defer held.Release(context.Background())

	drivers := &fakeDrivers{}
	saved := &memOutcomes{}
	r := &Runner{
		Global:   config.Global{RetryCount: 0, DryRun: true, ScreenshotDir: t.TempDir()},
		Accounts: []config.Account{bob, alice, carol},
		Drivers:  drivers,
		Outcomes: saved,
		Locker:   locker,
		Log:      logger.Discard(),
		API:      api(t),
		Sleep:    (&clock.Recorder{}).Sleep,
		Now:      func() time.Time { return now },
	}

	outs := r.RunAll(context.Background())
	require.Len(t, outs, 2)
	require.Equal(t, "bob", outs[0].Account)
	require.False(t, outs[0].Success)
	require.Equal(t, "alice", outs[1].Account)
	require.True(t, outs[1].Success, outs[1].Error)
	require.Equal(t, outs, saved.all)

	for _, d := range drivers.drivers {
		require.Equal(t, 1, d.Closed)
	}

	// alice's lock was released after her run
	lease, err := locker.Acquire(context.Background(), lock.Key("alice"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestSelect(t *testing.T) {
	f := &config.File{Accounts: []config.Account{alice}}

	all, err := Select(f, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	one, err := Select(f, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", one[0].Name)

	_, err = Select(f, "nobody")
	require.Error(t, err)

	_, err = Select(&config.File{}, "")
	require.ErrorIs(t, err, ErrNoAccounts)
}

func TestSessionDryRunWithoutPaymentDetails(t *testing.T) {
	f, err := config.Parse([]byte(`
[global]
day_delta = 7

[dave]
username = dave
password = pw
activity = Badminton
start_time = 17:00
`), nil, false)
	require.NoError(t, err)
	require.True(t, f.Global.DryRun)
	dave, ok := f.Account("dave")
	require.True(t, ok)
	require.False(t, dave.HasPaymentDetails())

	drivers := &fakeDrivers{}
	s, rec := newSession(t, dave, drivers)

	out := s.Run(context.Background())
	require.True(t, out.Success, out.Error)
	require.Equal(t, booking.StateDone, s.State())
	require.Equal(t, booking.StateConfirmed, out.State)
	require.NotEmpty(t, out.Screenshot)
	require.Equal(t, []time.Duration{20 * time.Second}, rec.Waits)

	// the payment form was never touched
	d := drivers.drivers[0]
	card, err := d.Find(context.Background(), browser.ID("oCard-sCardNumber"))
	require.NoError(t, err)
	require.Empty(t, card.(*browsertest.Element).Typed)
	require.Equal(t, 1, d.Closed)
}

func TestSessionDeadlineDuringAPICall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Sites/1/Timetables/Bookings", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	drivers := &fakeDrivers{}
	s, _ := newSession(t, alice, drivers)
	s.API.BaseURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := s.Run(ctx)
	require.False(t, out.Success)
	require.Equal(t, booking.StateCredentialsExtracted, out.State)
	require.Equal(t, booking.KindTimedOut.String(), out.ErrorKind)
	require.Equal(t, string(booking.CodeTimedOut), out.ErrorCode)
	require.Equal(t, 1, drivers.drivers[0].Closed)
}
