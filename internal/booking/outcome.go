package booking

import "time"

// State is a step of one booking attempt.
type State string

const (
	StateStart                State = "start"
	StateAuthenticated        State = "authenticated"
	StateCredentialsExtracted State = "credentials_extracted"
	StateResourceMatched      State = "resource_matched"
	StateSubInstancesFetched  State = "sub_instances_fetched"
	StateReserved             State = "reserved"
	StateCheckedOut           State = "checked_out"
	StateConfirmed            State = "confirmed"
	StatePaymentFilled        State = "payment_filled"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Outcome is the terminal record of one account's attempt. It is written once.
type Outcome struct {
	ID         string
	Account    string
	Success    bool
	State      State // last state reached before Done or Failed
	ErrorKind  string
	ErrorCode  string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	BasketID   string
	Activity   string
	Screenshot string
}

func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
