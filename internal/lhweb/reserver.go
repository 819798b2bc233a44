package lhweb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/clock"
)

const roundInterval = time.Second

// Phrases the site puts in an item rejection when the slot can't be had at all.
var businessRulePhrases = []string{"fully booked", "outside"}

type Reserver struct {
	*Client
	RetryCount int
	Sleep      clock.Sleeper
}

func NewReserver(c *Client, retryCount int) *Reserver {
	return &Reserver{Client: c, RetryCount: retryCount, Sleep: clock.Sleep}
}

func (r *Reserver) FetchSubLocations(ctx context.Context, a booking.Activity, creds booking.Credentials) ([]booking.SubLocation, error) {
	const op = "fetch sub locations"
	start, err := a.QueryStart()
	if err != nil {
		return nil, booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "activity start", err)
	}
	end, err := a.QueryEnd()
	if err != nil {
		return nil, booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "activity end", err)
	}

	q := url.Values{}
	q.Set("siteId", siteID)
	q.Set("activityCode", a.ActivityCode)
	q.Set("locationCode", a.LocationCode)
	q.Set("startDateTime", start)
	q.Set("endDateTime", end)

	r.Log.Info("fetching activity sub locations", "activity", a.Key())
	var subs []booking.SubLocation
	if err := r.getJSON(ctx, op, "/Bookings/SubLocationGroups", q, creds, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// CreateBasket opens a fresh basket and returns its id.
func (r *Reserver) CreateBasket(ctx context.Context, creds booking.Credentials) (string, error) {
	const op = "create basket"
	req, err := r.newRequest(ctx, http.MethodPost, "/Basket", nil, nil, creds)
	if err != nil {
		return "", booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "build request", err)
	}
	status, body, err := r.do(req)
	if err != nil {
		return "", booking.E(booking.KindUnexpectedTerminal, booking.CodeAPI, op, "request failed", err)
	}
	if status != http.StatusOK {
		return "", booking.APIError(booking.KindUnexpectedTerminal, op,
			fmt.Sprintf("could not create basket: %s", strings.TrimSpace(string(body))))
	}
	id := strings.TrimSpace(strings.ReplaceAll(string(body), `"`, ""))
	if id == "" {
		return "", booking.APIError(booking.KindUnexpectedTerminal, op, "empty basket id")
	}
	r.Log.Info("created basket", "basket_id", id)
	return id, nil
}

// Reserve creates a basket and tries to attach the activity to it through each
// available sub location, for RetryCount+1 rounds. subs is the snapshot taken before
// the first round and is not refreshed between rounds.
func (r *Reserver) Reserve(ctx context.Context, a booking.Activity, subs []booking.SubLocation, creds booking.Credentials) (string, error) {
	r.Log.Info("adding activity to basket", "activity", a.Key())
	basketID, err := r.CreateBasket(ctx, creds)
	if err != nil {
		return "", err
	}

	for round := 0; round <= r.RetryCount; round++ {
		for _, sub := range subs {
			if !sub.Available {
				r.Log.Debug("sub location unavailable", "sub_location", sub.Names)
				continue
			}
			err := r.attach(ctx, basketID, a, sub, creds)
			if err == nil {
				r.Log.Info("activity added to basket", "basket_id", basketID, "sub_location", sub.Names)
				return basketID, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.Log.Warn("add to basket failed", "round", round, "sub_location", sub.Names,
				"code", booking.CodeOf(err), "err", err)
		}
		if err := r.Sleep(ctx, roundInterval); err != nil {
			return "", err
		}
	}
	return "", booking.APIError(booking.KindExpectedTerminal, "reserve", "could not add to basket")
}

// attach posts one basket item. Every failure is Retryable; rejections the site
// words as a business rule keep that code so they're logged as such.
func (r *Reserver) attach(ctx context.Context, basketID string, a booking.Activity, sub booking.SubLocation, creds booking.Credentials) error {
	const op = "add to basket"
	req, err := r.newRequest(ctx, http.MethodPost, "/Basket/"+url.PathEscape(basketID)+"/Items", nil,
		newBasketItem(basketID, a, sub, creds.PersonID), creds)
	if err != nil {
		return booking.E(booking.KindRetryable, booking.CodeAPI, op, "build request", err)
	}
	status, body, err := r.do(req)
	if err != nil {
		return booking.E(booking.KindRetryable, booking.CodeAPI, op, "request failed", err)
	}
	if status == http.StatusOK {
		return nil
	}
	text := strings.TrimSpace(string(body))
	if isBusinessRule(text) {
		return booking.E(booking.KindRetryable, booking.CodeBusinessRule, op, text, nil)
	}
	return booking.APIError(booking.KindRetryable, op, fmt.Sprintf("status %d: %s", status, text))
}

func isBusinessRule(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range businessRulePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

type basketItem struct {
	ID                      int                `json:"Id"`
	BasketID                string             `json:"BasketId"`
	Description             string             `json:"Description"`
	UntranslatedDescription *string            `json:"UntranslatedDescription"`
	IncomeKey               *string            `json:"IncomeKey"`
	IncomeCode              *string            `json:"IncomeCode"`
	GrossAmount             int                `json:"GrossAmount"`
	VATCode                 string             `json:"VATCode"`
	VATAmount               int                `json:"VATAmount"`
	Type                    string             `json:"Type"`
	DisplayOrder            int                `json:"DisplayOrder"`
	SiteID                  int                `json:"SiteId"`
	Metadata                basketItemMetadata `json:"BasketItemMetadata"`
	DurationDescription     *string            `json:"DurationDescription"`
	FormattedGrossAmount    *string            `json:"FormattedGrossAmount"`
	Quantity                int                `json:"Quantity"`
	ItemOwnerPersonFK       string             `json:"ItemOwnerPersonFK"`
}

type basketItemMetadata struct {
	ActivityCode           string `json:"ActivityCode"`
	LocationCode           string `json:"LocationCode"`
	LocationTypeSingular   string `json:"LocationTypeSingular"`
	ActivityGroupID        string `json:"ActivityGroupId"`
	SubLocationGroup       int    `json:"SubLocationGroup"`
	SubLocationDescription string `json:"SubLocationDescription"`
	LocationDescription    string `json:"LocationDescription"`
	StartTime              string `json:"StartTime"`
	EndTime                string `json:"EndTime"`
	SiteName               string `json:"SiteName"`
}

func newBasketItem(basketID string, a booking.Activity, sub booking.SubLocation, personID string) basketItem {
	return basketItem{
		BasketID:     basketID,
		Description:  a.Description,
		VATCode:      "S",
		Type:         "Xn.Booking",
		DisplayOrder: 1,
		SiteID:       1,
		Metadata: basketItemMetadata{
			ActivityCode:           a.ActivityCode,
			LocationCode:           a.LocationCode,
			LocationTypeSingular:   a.AvailablePlaceLocationDescription,
			ActivityGroupID:        a.ActivityGroupID,
			SubLocationGroup:       sub.GroupID,
			SubLocationDescription: sub.Names,
			LocationDescription:    a.LocationDescription,
			StartTime:              a.StartTime,
			EndTime:                a.EndTime,
			SiteName:               siteName,
		},
		ItemOwnerPersonFK: personID,
	}
}
