// Package checkout drives the basket page through confirmation and payment.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/browser"
	"github.com/example/slotbook/internal/clock"
	"github.com/example/slotbook/internal/config"
)

const (
	DefaultBasketURL = "https://sportsbookings.leeds.ac.uk/LhWeb/en/Members/Home/BasketDetails"
	DefaultSettle    = 20 * time.Second

	country = "United Kingdom"
)

var (
	payNowButton = browser.XPath(`//button[text()="Pay Now"]`)
	submitButton = browser.ID("form-submit")

	descriptionSpan = browser.XPath(`//span[@data-bind="text: Description"]`)
	dateTimeSpan    = browser.XPath(`//span[@data-bind="text: BookingFormattedDateTime"]`)
	locationSpan    = browser.XPath(`//span[@data-bind="text: Location"]`)
	courtSpan       = browser.XPath(`//span[@data-bind="text: SubLocationName"]`)

	manualAddressLink = browser.XPath(`//a[text()="Enter your address manually"]`)
	countrySelect     = browser.ID("oCustomer-sCountryCode")
	addressInput      = browser.ID("oCustomer-sAddressLine1")
	townInput         = browser.ID("oCustomer-sTown")
	postcodeInput     = browser.ID("oCustomer-sPostCode")
	payerInput        = browser.ID("oCustomer-sCardholderName")
	phoneInput        = browser.ID("oCustomer-sTelephoneNumber")

	cardHolderInput = browser.ID("oCard-sCardHolderName")
	cardNumberInput = browser.ID("oCard-sCardNumber")
	cardCVVInput    = browser.ID("oCard-sCVV")
	cardMonthSelect = browser.ID("oCard-sCardEndDateMonth")
	cardYearSelect  = browser.ID("oCard-sCardEndDateYear")
)

// Messages the basket page shows instead of the summary when the slot is gone.
var siteErrors = []string{"fully booked", "outside the booking window"}

const pageTextJS = `() => document.body ? document.body.innerText : ""`

type Checkout struct {
	Driver        browser.Driver
	Log           *slog.Logger
	BasketURL     string
	ScreenshotDir string
	Settle        time.Duration
	Sleep         clock.Sleeper
}

func New(d browser.Driver, log *slog.Logger, screenshotDir string) *Checkout {
	return &Checkout{
		Driver:        d,
		Log:           log,
		BasketURL:     DefaultBasketURL,
		ScreenshotDir: screenshotDir,
		Settle:        DefaultSettle,
		Sleep:         clock.Sleep,
	}
}

func (c *Checkout) NavigateToCheckout(ctx context.Context, basketID string) error {
	u := c.BasketURL + "?basketId=" + url.QueryEscape(basketID)
	c.Log.Info("going to checkout", "basket_id", basketID)
	return c.Driver.Navigate(ctx, u)
}

// ConfirmCheckout logs the basket summary and clicks through "Pay Now" and the
// following continue button, once each.
func (c *Checkout) ConfirmCheckout(ctx context.Context) error {
	payNow, err := c.Driver.WaitFor(ctx, payNowButton, browser.DefaultWait)
	if err != nil {
		if rerr := c.checkSiteError(ctx); rerr != nil {
			return rerr
		}
		return err
	}
	if err := c.checkSiteError(ctx); err != nil {
		return err
	}

	var summary [4]string
	for i, loc := range []browser.Locator{descriptionSpan, dateTimeSpan, locationSpan, courtSpan} {
		text, err := c.text(ctx, loc)
		if err != nil {
			return err
		}
		summary[i] = text
	}
	c.Log.Info("confirming booking",
		"activity", summary[0], "start_time", summary[1], "location", summary[2], "court", summary[3])

	if err := payNow.Click(ctx); err != nil {
		return booking.ElementError("confirm checkout", payNowButton.String(), err)
	}
	cont, err := c.Driver.WaitFor(ctx, submitButton, browser.DefaultWait)
	if err != nil {
		return err
	}
	if err := cont.Click(ctx); err != nil {
		return booking.ElementError("confirm checkout", submitButton.String(), err)
	}
	return nil
}

// FillPaymentDetails completes the address and card forms. The final submit is
// only clicked when dryRun is false.
func (c *Checkout) FillPaymentDetails(ctx context.Context, acct config.Account, dryRun bool) error {
	c.Log.Info("filling in address")
	link, err := c.Driver.WaitFor(ctx, manualAddressLink, browser.DefaultWait)
	if err != nil {
		return err
	}
	if err := link.Click(ctx); err != nil {
		return booking.ElementError("fill address", manualAddressLink.String(), err)
	}
	if err := c.selectOption(ctx, countrySelect, country); err != nil {
		return err
	}
	for _, f := range []struct {
		loc   browser.Locator
		value string
	}{
		{addressInput, acct.AddressLine1},
		{townInput, acct.AddressCity},
		{postcodeInput, acct.AddressPostcode},
		{payerInput, acct.PayerName},
		{phoneInput, acct.ContactNumber},
	} {
		if err := c.typeInto(ctx, f.loc, f.value); err != nil {
			return err
		}
	}
	if err := c.click(ctx, submitButton); err != nil {
		return err
	}

	if _, err := c.Driver.WaitFor(ctx, cardHolderInput, browser.DefaultWait); err != nil {
		return err
	}
	c.Log.Info("filling in payment details")
	if err := c.click(ctx, cardTypeOption(acct.CardType)); err != nil {
		return err
	}
	if err := c.typeInto(ctx, cardNumberInput, acct.CardNumber); err != nil {
		return err
	}
	if err := c.typeInto(ctx, cardCVVInput, acct.CardCVV); err != nil {
		return err
	}
	if err := c.selectOption(ctx, cardMonthSelect, acct.CardExpiryMonth); err != nil {
		return err
	}
	if err := c.selectOption(ctx, cardYearSelect, acct.CardExpiryYear); err != nil {
		return err
	}

	if dryRun {
		c.Log.Warn("dry run, not submitting payment")
		return nil
	}
	c.Log.Info("submitting payment")
	return c.click(ctx, submitButton)
}

// Capture waits for the page to settle and saves a screenshot named after the
// attempt's start time. It returns the file path.
func (c *Checkout) Capture(ctx context.Context, startedAt time.Time) (string, error) {
	if err := c.Sleep(ctx, c.Settle); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(c.ScreenshotDir, startedAt.Format(time.RFC3339)+".png")
	if err := c.Driver.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	c.Log.Info("saved screenshot", "path", path)
	return path, nil
}

func (c *Checkout) checkSiteError(ctx context.Context) error {
	v, err := c.Driver.Eval(ctx, pageTextJS)
	if err != nil {
		c.Log.Debug("could not read page text", "err", err)
		return nil
	}
	text, _ := v.(string)
	lower := strings.ToLower(text)
	for _, msg := range siteErrors {
		if strings.Contains(lower, msg) {
			return booking.BusinessRule("confirm checkout", "site reports slot is "+msg)
		}
	}
	return nil
}

func cardTypeOption(cardType string) browser.Locator {
	return browser.XPath("//span[text()=" + xpathString(cardType) + "]")
}

// xpathString quotes s as an XPath 1.0 string literal. XPath has no escapes, so
// a value holding both quote kinds is split into a concat() of quoted runs.
func xpathString(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	out := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			out = append(out, `'"'`)
		}
		if p != "" {
			out = append(out, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(out, ", ") + ")"
}

func (c *Checkout) text(ctx context.Context, loc browser.Locator) (string, error) {
	el, err := c.Driver.Find(ctx, loc)
	if err != nil {
		return "", err
	}
	s, err := el.Text(ctx)
	if err != nil {
		return "", booking.ElementError("read text", loc.String(), err)
	}
	return strings.TrimSpace(s), nil
}

func (c *Checkout) click(ctx context.Context, loc browser.Locator) error {
	el, err := c.Driver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return booking.ElementError("click", loc.String(), err)
	}
	return nil
}

func (c *Checkout) typeInto(ctx context.Context, loc browser.Locator, value string) error {
	el, err := c.Driver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Type(ctx, value); err != nil {
		return booking.ElementError("type", loc.String(), err)
	}
	return nil
}

func (c *Checkout) selectOption(ctx context.Context, loc browser.Locator, label string) error {
	el, err := c.Driver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Select(ctx, label); err != nil {
		return booking.ElementError("select "+label, loc.String(), err)
	}
	return nil
}
