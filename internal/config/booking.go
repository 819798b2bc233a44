package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/slotbook/internal/secret"
	"gopkg.in/ini.v1"
)

const GlobalSection = "global"

type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
	BackendDocker Backend = "docker"
)

type Engine string

const (
	EnginePlaywright Engine = "playwright"
	EngineRod        Engine = "rod"
)

// Global holds the run-wide booking parameters from the [global] section.
type Global struct {
	HeadlessMode  bool
	DayDelta      int
	RetryCount    int
	DriverBackend Backend
	DriverURL     string
	DriverEngine  Engine
	Browser       string
	Stealth       bool
	DryRun        bool
	Scheduled     bool
	ScheduleTimes []string // HH:MM
	ScreenshotDir string
}

// Account is one account section: credentials, preference and payment details.
type Account struct {
	Name string

	Username  string
	Password  string
	Activity  string
	StartTime string

	AddressLine1    string
	AddressCity     string
	AddressPostcode string
	PayerName       string
	ContactNumber   string
	CardType        string
	CardNumber      string
	CardCVV         string
	CardExpiryMonth string
	CardExpiryYear  string
}

type File struct {
	Global   Global
	Accounts []Account
}

func (f *File) Account(name string) (Account, bool) {
	for _, a := range f.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}

// Load reads the booking INI file. Sealed values ("enc:...") are opened with box.
func Load(path string, box *secret.Box, production bool) (*File, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load booking config %s: %w", path, err)
	}
	return parse(f, box, production)
}

// Parse is Load for an in-memory document.
func Parse(src []byte, box *secret.Box, production bool) (*File, error) {
	f, err := ini.Load(src)
	if err != nil {
		return nil, fmt.Errorf("parse booking config: %w", err)
	}
	return parse(f, box, production)
}

func parse(f *ini.File, box *secret.Box, production bool) (*File, error) {
	if !f.HasSection(GlobalSection) {
		return nil, fmt.Errorf("booking config: missing [%s] section", GlobalSection)
	}
	g, err := parseGlobal(f.Section(GlobalSection), production)
	if err != nil {
		return nil, err
	}
	out := &File{Global: g}
	for _, name := range f.SectionStrings() {
		if name == GlobalSection || name == ini.DefaultSection {
			continue
		}
		a, err := parseAccount(name, f.Section(name), box)
		if err != nil {
			return nil, err
		}
		if err := a.Validate(g.DryRun); err != nil {
			return nil, err
		}
		out.Accounts = append(out.Accounts, a)
	}
	return out, nil
}

func parseGlobal(s *ini.Section, production bool) (Global, error) {
	g := Global{
		DriverBackend: Backend(strings.ToLower(s.Key("driver_backend").MustString(string(BackendLocal)))),
		DriverURL:     strings.TrimSpace(s.Key("driver_url").String()),
		DriverEngine:  Engine(strings.ToLower(s.Key("driver_engine").MustString(string(EnginePlaywright)))),
		Browser:       strings.ToLower(s.Key("browser").MustString("firefox")),
		ScreenshotDir: s.Key("screenshot_dir").MustString("screenshots"),
	}
	var err error
	if g.HeadlessMode, err = boolKey(s, "headless_mode", true); err != nil {
		return Global{}, err
	}
	if g.DayDelta, err = intKey(s, "day_delta"); err != nil {
		return Global{}, err
	}
	if g.RetryCount, err = intKey(s, "retry_count"); err != nil {
		return Global{}, err
	}
	if g.Stealth, err = boolKey(s, "stealth", false); err != nil {
		return Global{}, err
	}
	if g.DryRun, err = boolKey(s, "dry_run", !production); err != nil {
		return Global{}, err
	}
	if g.Scheduled, err = boolKey(s, "scheduled", false); err != nil {
		return Global{}, err
	}
	for _, t := range strings.Split(s.Key("schedule_time").String(), ",") {
		if t = strings.TrimSpace(t); t != "" {
			g.ScheduleTimes = append(g.ScheduleTimes, t)
		}
	}
	return g, g.Validate()
}

func (g Global) Validate() error {
	if g.DayDelta < 0 {
		return fmt.Errorf("global: day_delta must be >= 0")
	}
	if g.RetryCount < 0 {
		return fmt.Errorf("global: retry_count must be >= 0")
	}
	switch g.DriverBackend {
	case BackendLocal:
	case BackendRemote, BackendDocker:
		if g.DriverURL == "" {
			return fmt.Errorf("global: driver_url required for %s backend", g.DriverBackend)
		}
	default:
		return fmt.Errorf("global: unknown driver_backend %q", g.DriverBackend)
	}
	switch g.DriverEngine {
	case EnginePlaywright, EngineRod:
	default:
		return fmt.Errorf("global: unknown driver_engine %q", g.DriverEngine)
	}
	switch g.Browser {
	case "firefox", "chromium":
	default:
		return fmt.Errorf("global: unknown browser %q", g.Browser)
	}
	if g.Scheduled && len(g.ScheduleTimes) == 0 {
		return fmt.Errorf("global: schedule_time required when scheduled")
	}
	for _, t := range g.ScheduleTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("global: invalid schedule_time %q (want HH:MM)", t)
		}
	}
	return nil
}

func parseAccount(name string, s *ini.Section, box *secret.Box) (Account, error) {
	var firstErr error
	get := func(k string) string {
		v, err := secret.Reveal(box, strings.TrimSpace(s.Key(k).String()))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("account %s: %s: %w", name, k, err)
		}
		return v
	}
	a := Account{
		Name:            name,
		Username:        get("username"),
		Password:        get("password"),
		Activity:        get("activity"),
		StartTime:       get("start_time"),
		AddressLine1:    get("address_line_1"),
		AddressCity:     get("address_city"),
		AddressPostcode: get("address_postcode"),
		PayerName:       get("payer_name"),
		ContactNumber:   get("contact_number"),
		CardType:        get("card_type"),
		CardNumber:      get("card_number"),
		CardCVV:         get("card_cvv"),
		CardExpiryMonth: get("card_expiry_month"),
		CardExpiryYear:  get("card_expiry_year"),
	}
	return a, firstErr
}

// Validate checks required fields. Payment and contact details are only consumed
// past confirmation, so a dry run may leave them empty.
func (a Account) Validate(dryRun bool) error {
	required := map[string]string{
		"username":   a.Username,
		"password":   a.Password,
		"activity":   a.Activity,
		"start_time": a.StartTime,
	}
	if !dryRun {
		for k, v := range a.paymentFields() {
			required[k] = v
		}
	}
	var missing []string
	for k, v := range required {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("account %s: missing %s", a.Name, strings.Join(missing, ", "))
	}
	return nil
}

// HasPaymentDetails reports whether every address and card field is set.
func (a Account) HasPaymentDetails() bool {
	for _, v := range a.paymentFields() {
		if v == "" {
			return false
		}
	}
	return true
}

func (a Account) paymentFields() map[string]string {
	return map[string]string{
		"address_line_1":    a.AddressLine1,
		"address_city":      a.AddressCity,
		"address_postcode":  a.AddressPostcode,
		"payer_name":        a.PayerName,
		"contact_number":    a.ContactNumber,
		"card_type":         a.CardType,
		"card_number":       a.CardNumber,
		"card_cvv":          a.CardCVV,
		"card_expiry_month": a.CardExpiryMonth,
		"card_expiry_year":  a.CardExpiryYear,
	}
}

func boolKey(s *ini.Section, k string, def bool) (bool, error) {
	if !s.HasKey(k) || strings.TrimSpace(s.Key(k).String()) == "" {
		return def, nil
	}
	v, err := s.Key(k).Bool()
	if err != nil {
		return false, fmt.Errorf("global: %s: %w", k, err)
	}
	return v, nil
}

func intKey(s *ini.Section, k string) (int, error) {
	if !s.HasKey(k) {
		return 0, fmt.Errorf("global: %s is required", k)
	}
	v, err := s.Key(k).Int()
	if err != nil {
		return 0, fmt.Errorf("global: %s: %w", k, err)
	}
	return v, nil
}
