package domain

// Status represents the lifecycle status of a market.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusResolved
}

// Outcome represents the resolved outcome of a market.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeInvalid Outcome = "INVALID"
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	return string(o)
}

// IsValid checks if the outcome is a valid value.
func (o Outcome) IsValid() bool {
	return o == OutcomeYes || o == OutcomeNo || o == OutcomeInvalid
}

// EventType represents the fundraising event category a market predicts.
type EventType string

const (
	EventTypeSeriesA     EventType = "SERIES_A"
	EventTypeSeriesB     EventType = "SERIES_B"
	EventTypeAcquisition EventType = "ACQUISITION"
	EventTypeIPO         EventType = "IPO"
	EventTypeOther       EventType = "OTHER"
)

// EventTypes lists every defined event type in on-chain code order.
var EventTypes = []EventType{
	EventTypeSeriesA,
	EventTypeSeriesB,
	EventTypeAcquisition,
	EventTypeIPO,
	EventTypeOther,
}

// String returns the string representation of EventType.
func (e EventType) String() string {
	return string(e)
}

// IsValid checks if the event type is a valid value.
func (e EventType) IsValid() bool {
	for _, v := range EventTypes {
		if e == v {
			return true
		}
	}
	return false
}

// Market represents one prediction event with opposing YES/NO pools.
// Pool balances and volume are in lamports.
type Market struct {
	PublicKey      string     `json:"public_key"`      // market account address (base58)
	Title          string     `json:"title"`           // event title
	Description    string     `json:"description"`     // event description
	Category       string     `json:"category"`        // free-form category label
	EventType      *EventType `json:"event_type"`      // nil if code unrecognized
	StartupName    string     `json:"startup_name"`    // startup the event is about
	ResolutionDate int64      `json:"resolution_date"` // Unix timestamp (seconds)
	Creator        string     `json:"creator"`         // creator wallet (base58)
	Resolver       string     `json:"resolver"`        // resolver wallet (base58)
	YesPool        uint64     `json:"yes_pool"`        // YES pool (lamports)
	NoPool         uint64     `json:"no_pool"`         // NO pool (lamports)
	TotalVolume    uint64     `json:"total_volume"`    // cumulative volume (lamports)
	Status         Status     `json:"status"`          // OPEN | RESOLVED
	Outcome        *Outcome   `json:"outcome"`         // nil unless resolved
	CreatedAt      int64      `json:"created_at"`      // Unix timestamp (seconds)
}

// IsResolved reports whether the market has been resolved.
func (m *Market) IsResolved() bool {
	return m.Status == StatusResolved
}
