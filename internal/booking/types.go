package booking

import (
	"fmt"
	"time"
)

const (
	// Layout of StartTime/EndTime as returned by the timetable endpoint.
	SiteTimeLayout = "2006-01-02T15:04:05"
	// Layout the sub location endpoint expects for its date range.
	QueryTimeLayout = "2006/01/02 15:04:05"
)

// Credentials is the authenticated session produced by the UI layer and handed to
// the HTTP clients. It is never persisted.
type Credentials struct {
	AccessToken string
	PersonID    string
	ExpiresAt   time.Time
}

func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Activity is one bookable timetable entry.
type Activity struct {
	ActivityCode                      string `json:"ActivityCode"`
	LocationCode                      string `json:"LocationCode"`
	LocationDescription               string `json:"LocationDescription"`
	ActivityGroupID                   string `json:"ActivityGroupId"`
	Description                       string `json:"ActivityDescription"`
	StartTime                         string `json:"StartTime"`
	EndTime                           string `json:"EndTime"`
	AvailablePlaceLocationDescription string `json:"AvailablePlaceLocationDescription"`
	DisplayName                       string `json:"DisplayName"`
}

func (a Activity) Key() string {
	return fmt.Sprintf("%s/%s/%s", a.ActivityCode, a.LocationCode, a.StartTime)
}

func (a Activity) QueryStart() (string, error) { return reformat(a.StartTime) }
func (a Activity) QueryEnd() (string, error)   { return reformat(a.EndTime) }

func (a Activity) String() string {
	return fmt.Sprintf("%s @ %s (%s - %s)", a.Description, a.LocationDescription, a.StartTime, a.EndTime)
}

func reformat(s string) (string, error) {
	t, err := time.Parse(SiteTimeLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse activity time %q: %w", s, err)
	}
	return t.Format(QueryTimeLayout), nil
}

// SubLocation is a court or room inside an activity's location.
type SubLocation struct {
	GroupID   int    `json:"SubLocationGroupId"`
	Names     string `json:"SubLocationNames"`
	Available bool   `json:"Available"`
}

// TargetDate is now shifted by dayDelta days and truncated to local midnight.
func TargetDate(now time.Time, dayDelta int) time.Time {
	t := now.AddDate(0, 0, dayDelta)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
