package lhweb

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
)

type Finder struct {
	*Client
}

func NewFinder(c *Client) *Finder {
	return &Finder{Client: c}
}

// Timetable lists every bookable activity on date, in server order.
func (f *Finder) Timetable(ctx context.Context, creds booking.Credentials, date time.Time) ([]booking.Activity, error) {
	q := url.Values{}
	q.Set("pid", creds.PersonID)
	q.Set("date", date.Format("2006/01/02")+" 00:00:00")

	var out []booking.Activity
	if err := f.getJSON(ctx, "fetch timetable", "/Sites/"+siteID+"/Timetables/Bookings", q, creds, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindMatching returns the first activity on date whose description equals
// activity and whose StartTime contains startTime. startTime is a substring match,
// so "17:00" matches "2024-05-01T17:00:00".
func (f *Finder) FindMatching(ctx context.Context, creds booking.Credentials, date time.Time, activity, startTime string) (booking.Activity, error) {
	f.Log.Info("fetching matching activity", "activity", activity, "start_time", startTime, "date", date.Format(time.DateOnly))
	all, err := f.Timetable(ctx, creds, date)
	if err != nil {
		return booking.Activity{}, err
	}
	for _, a := range all {
		f.Log.Debug("timetable entry", "activity", a.String())
		if a.Description == activity && strings.Contains(a.StartTime, startTime) {
			f.Log.Info("found matching activity", "activity", a.String())
			return a, nil
		}
	}
	return booking.Activity{}, booking.ActivityNotFound("find activity", activity, startTime)
}
